package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// amountFields are event fields holding amounts of the emitting token.
var amountFields = map[string]bool{"value": true, "amount": true}

// tokenAt returns the token deployed at addr.
func tokenAt(n *node.Node, addr string) (node.Token, bool) {
	if n == nil || !common.IsHexAddress(addr) {
		return nil, false
	}
	a := common.HexToAddress(addr)
	for _, c := range contracts {
		if t, _ := n.Token(c); t.Address() == a {
			return t, true
		}
	}
	return nil, false
}

// renderEntry writes a transaction and its receipt. When n is non-nil,
// event amounts are shown in token units next to base units.
func renderEntry(w io.Writer, n *node.Node, e store.Entry) {
	tx, r := e.Transaction, e.Receipt
	fmt.Fprintf(w, "tx %s seq %d %s\n", tx.ID, tx.Seq, r.Status)
	fmt.Fprintf(w, "  %s from %s\n", tx.Method, tx.From)
	if len(tx.Args) > 0 {
		fmt.Fprintf(w, "  args: %s\n", formatObject(tx.Args))
	}
	if !r.Committed() {
		fmt.Fprintf(w, "  reverted: %s: %s\n", r.Code, r.Reason)
		return
	}
	if len(r.Result) > 0 {
		fmt.Fprintf(w, "  result: %s\n", formatObject(r.Result))
	}
	for _, ev := range r.Events {
		emitter := ev.Emitter
		t, known := tokenAt(n, ev.Emitter)
		if known {
			emitter = t.Metadata().Symbol
		}
		fields := make([]string, 0, len(ev.Fields))
		for _, k := range ev.Fields.SortedKeys() {
			s := formatValue(ev.Fields[k])
			if known && amountFields[k] {
				if v, err := ledger.ParseAmount(s); err == nil {
					s = fmt.Sprintf("%s (%s)", s, ledger.FormatUnits(v, t.Metadata().Decimals))
				}
			}
			fields = append(fields, k+"="+s)
		}
		fmt.Fprintf(w, "  #%d %s %s %s\n", ev.Index, emitter, ev.Name, strings.Join(fields, " "))
	}
}

func formatObject(obj ir.IRObject) string {
	parts := make([]string, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		parts = append(parts, k+"="+formatValue(obj[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v ir.IRValue) string {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return fmt.Sprintf("%d", int64(val))
	case ir.IRBool:
		return fmt.Sprintf("%t", bool(val))
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
