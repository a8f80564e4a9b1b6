package pool

// Target identifies one RouterOS device and the credential used to reach
// it. Names must be unique across the fleet; that invariant is enforced by
// the configuration loader, not here.
type Target struct {
	Name    string
	Address string
	User    string
	Secret  Secret
}

// Key is the pool's addressing unit: different users against the same
// address are distinct pools, since RouterOS authorizes per-user.
type Key struct {
	Address string
	User    string
}

// KeyOf derives a Key from a Target.
func KeyOf(t Target) Key {
	return Key{Address: t.Address, User: t.User}
}
