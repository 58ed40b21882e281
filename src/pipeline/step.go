package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/will-rowe/lintrack/src/config"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// StepName returns the done-marker namespace for a set of parameter ids,
// the name does not depend on the order of pids
func StepName(pids []int64) string {
	if len(pids) == 1 {
		return "solve_" + strconv.FormatInt(pids[0], 10)
	}
	sorted := append([]int64(nil), pids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	ids := make([]string, len(sorted))
	for i, pid := range sorted {
		ids[i] = strconv.FormatInt(pid, 10)
	}
	return "solve_" + hash16([]byte(strings.Join(ids, ",")))
}

// GreedyStepName returns the done-marker namespace for a greedy run, it changes with the greedy settings
func GreedyStepName(cfg config.GreedyConfig) (string, error) {
	data, err := msgpack.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return "greedy_" + hash16(data), nil
}

// GreedySelectionKey returns the key a greedy step writes under, so each greedy setting keeps its own selection
func GreedySelectionKey(step string) string {
	return "selected_" + step
}

func hash16(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
