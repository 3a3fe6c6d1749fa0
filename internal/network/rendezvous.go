package network

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/zeebo/blake3"

	"Covenant/internal/ledger"
)

// addresser is implemented by remotes that have a stable address.
type addresser interface {
	Addr() string
}

// scoredRemote pairs a remote with its rendezvous score for one package.
type scoredRemote struct {
	remote ledger.AttachmentFetcher
	score  [32]byte
}

// rendezvousOrder returns remotes ordered by their rendezvous score for id,
// highest first. The order is stable per (id, remote set), so lookups for one
// package always start at the same node while different packages spread
// across all of them.
func rendezvousOrder(id ledger.SecureHash, remotes []ledger.AttachmentFetcher) []ledger.AttachmentFetcher {
	scored := make([]scoredRemote, len(remotes))

	for i, r := range remotes {
		scored[i] = scoredRemote{remote: r, score: rendezvousScore(id, remoteKey(r, i))}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return bytes.Compare(scored[i].score[:], scored[j].score[:]) > 0
	})

	out := make([]ledger.AttachmentFetcher, len(scored))
	for i, s := range scored {
		out[i] = s.remote
	}

	return out
}

// rendezvousScore is BLAKE3(id || key).
func rendezvousScore(id ledger.SecureHash, key string) [32]byte {
	h := blake3.New()
	h.Write(id[:])
	h.Write([]byte(key))

	var result [32]byte
	h.Sum(result[:0])

	return result
}

func remoteKey(r ledger.AttachmentFetcher, i int) string {
	if a, ok := r.(addresser); ok {
		return a.Addr()
	}

	return strconv.Itoa(i)
}
