// Package psl implements the Public Suffix List engine (spec §4.1): five
// label tries — registry-suffix exact, registry wildcard, registry
// exception, private-suffix exact, private wildcard — built from a Mozilla
// PSL-format data file, used to compute the base (registrable) domain and to
// classify whether a name is itself a public suffix.
// This package is a bespoke trie/override implementation rather than a
// dependency on a third-party PSL library, since none in the ecosystem
// exposes the five-trie structure this engine needs directly.
package psl

// trieNode is one label position in a suffix trie. Children are keyed by the
// literal label text (already lowercased/IDNA-ASCII). terminal marks that the
// path from the root to this node spells out a complete rule.
type trieNode struct {
	children map[string]*trieNode
	terminal bool
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// trie stores rules indexed by their labels in right-to-left order (the TLD
// label first), so that walking a candidate domain's labels from the last
// label to the first walks the trie root to leaf.
type trie struct {
	root *trieNode
}

func newTrie() *trie {
	return &trie{root: newTrieNode()}
}

// insert adds a rule given as labels in left-to-right (human-readable) order,
// e.g. []string{"co", "uk"} for the rule "co.uk".
func (t *trie) insert(labelsLeftToRight []string) {
	n := t.root
	for i := len(labelsLeftToRight) - 1; i >= 0; i-- {
		label := labelsLeftToRight[i]
		child, ok := n.children[label]
		if !ok {
			child = newTrieNode()
			n.children[label] = child
		}
		n = child
	}
	n.terminal = true
}

// longestMatch returns the number of labels (counted from the rightmost) of
// the longest terminal path matching domainLabels (left-to-right order), and
// whether any match was found at all.
func (t *trie) longestMatch(domainLabels []string) (labelCount int, found bool) {
	n := t.root
	matched := 0
	for i := len(domainLabels) - 1; i >= 0; i-- {
		child, ok := n.children[domainLabels[i]]
		if !ok {
			break
		}
		n = child
		matched++
		if n.terminal {
			labelCount = matched
			found = true
		}
	}
	return labelCount, found
}

// wildcardMatch checks domainLabels against every wildcard rule body stored
// in t (inserted without their leading "*."), walking from the rightmost
// label inward. A rule body matches if it terminates exactly at some depth
// that still leaves at least one label to its left to stand in for the "*".
// The longest (most specific) such body wins.
func (t *trie) wildcardMatch(domainLabels []string) (labelCount int, found bool) {
	n := t.root
	matched := 0
	best := -1
	for i := len(domainLabels) - 1; i >= 0; i-- {
		child, ok := n.children[domainLabels[i]]
		if !ok {
			break
		}
		n = child
		matched++
		if n.terminal && matched < len(domainLabels) {
			best = matched
		}
	}
	if best == -1 {
		return 0, false
	}
	// The wildcard itself consumes exactly one more label than the body.
	return best + 1, true
}
