// Package accounts resolves the deployer credentials handed to every network entry.
// A private key wins over a mnemonic; having neither is a MissingSecret error.
package accounts

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/deployctl/internal/errors"
)

const (
	EnvPrivateKey           = "DEPLOYER_PK"
	EnvMnemonic             = "MNEMONIC"
	EnvKeystorePath         = "DEPLOYER_KEYSTORE"
	EnvKeystorePassword     = "DEPLOYER_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "DEPLOYER_KEYSTORE_PASSWORD_FILE"

	DefaultHDPath  = "m/44'/60'/0'/0"
	DefaultHDCount = 10

	redacted = "<redacted>"
)

type Source string

const (
	SourcePrivateKey Source = "private-key"
	SourceKeystore   Source = "keystore"
	SourceMnemonic   Source = "mnemonic"
)

type Inputs struct {
	PrivateKey           string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
	Mnemonic             string
}

// InputsFromEnv reads the keystore variables; key and mnemonic come from config.Settings.
func InputsFromEnv(privateKey, mnemonic string) Inputs {
	return Inputs{
		PrivateKey:           privateKey,
		Mnemonic:             mnemonic,
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
}

type HDAccounts struct {
	Mnemonic     string `json:"mnemonic"`
	Path         string `json:"path"`
	InitialIndex int    `json:"initialIndex"`
	Count        int    `json:"count"`
}

type Accounts struct {
	Source     Source
	privateKey string
	hd         *HDAccounts
	deployer   common.Address
}

// Deployer is known only for key-based sources.
func (a Accounts) Deployer() (common.Address, bool) {
	return a.deployer, a.privateKey != ""
}

// HardhatValue is the value of a network's "accounts" field.
func (a Accounts) HardhatValue() any {
	if a.privateKey != "" {
		return []string{a.privateKey}
	}
	if a.hd == nil {
		return nil
	}
	hd := *a.hd
	return hd
}

// RedactedValue has the same shape as HardhatValue with secrets masked.
func (a Accounts) RedactedValue() any {
	if a.privateKey != "" {
		return []string{redacted}
	}
	if a.hd == nil {
		return nil
	}
	hd := *a.hd
	hd.Mnemonic = redacted
	return hd
}

func Resolve(in Inputs) (Accounts, error) {
	if pk := strings.TrimSpace(in.PrivateKey); pk != "" {
		key, err := parseHexKey(pk)
		if err != nil {
			return Accounts{}, clierr.Wrap(clierr.CodeConfig, "invalid "+EnvPrivateKey, err)
		}
		return fromKey(SourcePrivateKey, key)
	}
	if path := strings.TrimSpace(in.KeystorePath); path != "" {
		key, err := loadKeystore(in)
		if err != nil {
			return Accounts{}, clierr.Wrap(clierr.CodeConfig, "load deployer keystore", err)
		}
		return fromKey(SourceKeystore, key)
	}
	if mnemonic := normalizeMnemonic(in.Mnemonic); mnemonic != "" {
		if err := validateMnemonic(mnemonic); err != nil {
			return Accounts{}, clierr.Wrap(clierr.CodeConfig, "invalid "+EnvMnemonic, err)
		}
		if _, err := gethaccounts.ParseDerivationPath(DefaultHDPath); err != nil {
			return Accounts{}, clierr.Wrap(clierr.CodeInternal, "parse derivation path", err)
		}
		return Accounts{
			Source: SourceMnemonic,
			hd: &HDAccounts{
				Mnemonic: mnemonic,
				Path:     DefaultHDPath,
				Count:    DefaultHDCount,
			},
		}, nil
	}
	return Accounts{}, clierr.MissingSecret(EnvPrivateKey, EnvMnemonic)
}

func fromKey(source Source, key *ecdsa.PrivateKey) (Accounts, error) {
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return Accounts{}, clierr.New(clierr.CodeInternal, "invalid ECDSA public key")
	}
	return Accounts{
		Source:     source,
		privateKey: "0x" + common.Bytes2Hex(crypto.FromECDSA(key)),
		deployer:   crypto.PubkeyToAddress(*pub),
	}, nil
}

func loadKeystore(in Inputs) (*ecdsa.PrivateKey, error) {
	password := in.KeystorePassword
	if strings.TrimSpace(password) == "" && strings.TrimSpace(in.KeystorePasswordFile) != "" {
		buf, err := os.ReadFile(in.KeystorePasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("keystore password is required")
	}
	buf, err := os.ReadFile(in.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func normalizeMnemonic(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func validateMnemonic(mnemonic string) error {
	switch n := len(strings.Fields(mnemonic)); n {
	case 12, 15, 18, 21, 24:
		return nil
	default:
		return fmt.Errorf("mnemonic has %d words", n)
	}
}
