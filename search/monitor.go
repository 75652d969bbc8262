package search

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query Query)
	AfterFilter(index string, candidates int)
	TextMiss(id string)
	Finish(results []Hit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)               {}
func (n *noopMonitor) AfterFilter(_ string, _ int) {}
func (n *noopMonitor) TextMiss(_ string)           {}
func (n *noopMonitor) Finish(_ []Hit)              {}
