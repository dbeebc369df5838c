//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrettyPrint writes a readable JSON representation of data to w.
func PrettyPrint(w io.Writer, data interface{}) {
	p, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		_, _ = fmt.Fprintln(w, err)
	} else {
		_, _ = fmt.Fprintf(w, "%s\n", p)
	}
}
