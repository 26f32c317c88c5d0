package dex

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/trie"
)

// Root returns the merkle root of the whole state. Two nodes that
// applied the same operations report the same root. Keys other
// components keep in the same database sort after the state keys and
// are not part of the root.
func (s *State) Root() (common.Hash, error) {
	st := trie.NewStackTrie(nil)
	var err error
	// the iterator yields keys in ascending order, which is what
	// the stack trie requires
	s.scan(nil, func(k, v []byte) bool {
		if k[0] > orderCounterKey[0] {
			return false
		}
		err = st.Update(common.CopyBytes(k), common.CopyBytes(v))
		return err == nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return st.Hash(), nil
}

// StateRoot returns the merkle root of the engine state.
func (e *Engine) StateRoot() (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state.Root()
}
