package payjoin

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// randIndexInclusive returns a uniformly random integer in [0, n], the set of
// valid insertion positions into a slice of length n. Using crypto/rand here
// matters: a sender who can predict where their contributed input lands can
// probe the receiver's wallet layout (§9).
func randIndexInclusive(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)+1))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// randChoiceInt picks a uniformly random element from a non-empty slice.
func randChoiceInt(items []int) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("cannot choose from empty slice")
	}
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(items))))
	if err != nil {
		return 0, err
	}
	return items[i.Int64()], nil
}
