// Package print provides helpers to pretty print objects.
package print

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/effective-security/xpgp/keyring"
)

// JSON prints value to out
func JSON(w io.Writer, value any) {
	marshaled, _ := json.Marshal(value)
	fmt.Fprintf(w, "%s\n", marshaled)
}

// Keys prints the key listing to out
func Keys(w io.Writer, list []keyring.KeyInfo) {
	for i, k := range list {
		kind := "pub"
		if k.HasSecret {
			kind = "sec"
		}
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, kind, k.Identity)
		fmt.Fprintf(w, "   Fingerprint: %s\n", strings.ToUpper(k.Fingerprint))
		fmt.Fprintf(w, "   Algorithm: %s-%d\n", k.Algorithm, k.Bits)
		fmt.Fprintf(w, "   Created: %s\n", k.CreatedAt.Format(time.RFC3339))
	}
}
