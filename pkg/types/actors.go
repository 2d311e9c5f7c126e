package types

// Well-known development actors, derived deterministically from their seed
// strings. Stable across runs, so expected addresses can appear in test
// fixtures.
var (
	Alice   = ActorFromSeed("//Alice")
	Bob     = ActorFromSeed("//Bob")
	Charlie = ActorFromSeed("//Charlie")
	Dave    = ActorFromSeed("//Dave")
	Eve     = ActorFromSeed("//Eve")
)

// ActorFromSeed derives an account id from a development seed string.
func ActorFromSeed(seed string) AccountID {
	h := ComputeHash([]byte(seed))
	return AccountID(h)
}
