package position

import (
	"fmt"
	"strconv"
	"strings"
)

// CorrelationComment is the comment fragment carrying a local id.
func CorrelationComment(id int64) string {
	return fmt.Sprintf("N: %d", id)
}

// CorrelationFromComment extracts the local id from an order comment.
func CorrelationFromComment(c string) (int64, bool) {
	words := strings.Fields(c)
	for i := 0; i < len(words)-1; i++ {
		if words[i] == "N:" {
			id, err := strconv.ParseInt(words[i+1], 10, 64)
			return id, err == nil
		}
	}
	return 0, false
}

// PredecessorFromComment extracts the source ticket from the comment of an
// order minted by a partial close ("from #1234", "split from #1234").
func PredecessorFromComment(c string) (int64, bool) {
	words := strings.Fields(c)
	for i := 0; i < len(words)-1; i++ {
		if words[i] == "from" && strings.HasPrefix(words[i+1], "#") {
			t, err := strconv.ParseInt(words[i+1][1:], 10, 64)
			return t, err == nil
		}
	}
	return 0, false
}
