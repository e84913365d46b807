package registry

// ABI fragments read during verification to rebuild constructor arguments.
const (
	MultiRewardsABI = `[
		{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"stakingToken","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`

	MultiRewardsFactoryABI = `[
		{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`
)

// Fully qualified contract paths passed to the verify task.
const (
	MultiRewardsContractPath        = "contracts/MultiRewards.sol:MultiRewards"
	MultiRewardsFactoryContractPath = "contracts/MultiRewardsFactory.sol:MultiRewardsFactory"
)
