package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-accounting-sync/entitysync"
	"github.com/jrsteele09/go-accounting-sync/synclog"
	"github.com/jrsteele09/go-accounting-sync/syncmanager"
)

type jsonOutcome struct {
	entitysync.Outcome
	Error    string `json:"error,omitempty"`
	LogError string `json:"logError,omitempty"`
}

func toJSON(outs []entitysync.Outcome) []jsonOutcome {
	res := make([]jsonOutcome, 0, len(outs))
	for _, o := range outs {
		j := jsonOutcome{Outcome: o}
		if o.Err != nil {
			j.Error = o.Err.Error()
		}
		if o.LogErr != nil {
			j.LogError = o.LogErr.Error()
		}
		res = append(res, j)
	}
	return res
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcomes(w io.Writer, asJSON bool, outs []entitysync.Outcome) error {
	if asJSON {
		return writeJSON(w, toJSON(outs))
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tLOCAL ID\tACTION\tRESULT\tREMOTE ID\tDETAIL")
	for _, o := range outs {
		detail := ""
		if o.Err != nil {
			detail = fmt.Sprintf("%s: %v", o.Reason, o.Err)
		}
		if !o.Logged() {
			detail = strings.TrimSpace(detail + " (not in sync log: " + o.LogErr.Error() + ")")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", o.EntityType, o.LocalID, o.Action, o.Result, dash(o.RemoteID), detail)
	}
	return tw.Flush()
}

func printBatch(w io.Writer, asJSON bool, b *syncmanager.BatchResult) error {
	if asJSON {
		return writeJSON(w, map[string]any{
			"customers": toJSON(b.Customers),
			"items":     toJSON(b.Items),
			"documents": toJSON(b.Documents),
		})
	}
	all := make([]entitysync.Outcome, 0, len(b.Customers)+len(b.Items)+len(b.Documents))
	all = append(all, b.Customers...)
	all = append(all, b.Items...)
	all = append(all, b.Documents...)
	return printOutcomes(w, false, all)
}

func printLog(w io.Writer, asJSON bool, entries []*synclog.Entry) error {
	if asJSON {
		return writeJSON(w, entries)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tLOCAL ID\tACTION\tSTATUS\tREMOTE ID\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.EntityType, e.EntityLocalID, e.Action, e.Status, dash(e.RemoteID), e.ErrorMessage)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
