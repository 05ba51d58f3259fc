package ports

// SeedSource derives the per-fit seeds for an ensemble run from one master
// seed. Implementations must be deterministic: the same (master, n) always
// yields the same seeds, and the n seeds are pairwise distinct.
type SeedSource interface {
	Draw(master int64, n int) []int64
}
