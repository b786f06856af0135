// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
)

// SalesCSV renders a sales CSV with one row per property id. Rows
// differ only in their ids, so distinct id lists give distinct files.
func SalesCSV(ids ...string) []byte {
	var builder strings.Builder
	builder.WriteString("PropertyId,Street Name,purchase_price,Unmapped\n")
	for i, id := range ids {
		fmt.Fprintf(&builder, "%s,Ring Road,%d,ignored\n", id, 500000+i*1000)
	}
	return []byte(builder.String())
}

// SalesDAT renders an NSW bulk sales file for district with one sale,
// one legal description, and one party record per property id.
func SalesDAT(district string, ids ...string) []byte {
	var builder strings.Builder
	fmt.Fprintf(&builder, "A;RTSALEDATA;%s;20240101 01:02:03;VALNET;\n", district)
	for i, id := range ids {
		fmt.Fprintf(&builder,
			"B;%s;%s;1;20240101 01:02:03;;%d;%d;RING RD;SUBURBIA;2211;650.5;M;20231201;20231230;%d;R2;R;RESIDENCE;;;;;AB%06d;\n",
			district, id, i+1, 10+i, 700000+i*1000, i)
		fmt.Fprintf(&builder, "C;%s;%s;1;20240101 01:02:03;%d/DP%d;\n", district, id, i+1, 1000+i)
		fmt.Fprintf(&builder, "D;%s;%s;1;20240101 01:02:03;P;;\n", district, id)
	}
	fmt.Fprintf(&builder, "Z;%d;%d;%d;%d;\n", 2+3*len(ids), len(ids), len(ids), len(ids))
	return []byte(builder.String())
}
