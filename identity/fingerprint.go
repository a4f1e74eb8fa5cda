package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DigestKey identifies one digest: the same search sending the same set of listings
// always yields the same key, whatever order the listings arrived in.
func DigestKey(searchID uuid.UUID, mlsNumbers []string) string {
	keys := make([]string, 0, len(mlsNumbers))
	for _, n := range mlsNumbers {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n != "" {
			keys = append(keys, n)
		}
	}
	sort.Strings(keys)

	input := fmt.Sprintf("%s|%s", searchID, strings.Join(keys, ","))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

// ArchiveKey is the object key a rendered digest is archived under:
// {prefix}/{search}/{digest[:2]}/{digest}.html
func ArchiveKey(prefix string, searchID uuid.UUID, digestKey string) string {
	prefix = strings.Trim(prefix, "/")
	shard := digestKey
	if len(shard) > 2 {
		shard = shard[:2]
	}
	if prefix == "" {
		return fmt.Sprintf("%s/%s/%s.html", searchID, shard, digestKey)
	}
	return fmt.Sprintf("%s/%s/%s/%s.html", prefix, searchID, shard, digestKey)
}
