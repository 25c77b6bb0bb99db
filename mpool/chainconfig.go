package mpool

// ChainConfig carries the network parameters the pool needs but does not
// own: block timing (for the republish cadence) and the genesis name (for
// the gossip topic string).
type ChainConfig struct {
	BlockDelaySecs       int64
	PropagationDelaySecs int64
	GenesisName          string
}
