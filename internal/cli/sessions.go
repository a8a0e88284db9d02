package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aretw0/weft/pkg/ports"
)

// ListSessions prints the ids of the sessions held by store.
func ListSessions(ctx context.Context, store ports.StateStore, w io.Writer) error {
	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}
	sort.Strings(ids)
	fmt.Fprintln(w, "Sessions:")
	for _, id := range ids {
		fmt.Fprintln(w, "- "+id)
	}
	return nil
}

// InspectSession prints the stored snapshot of a session as indented JSON.
func InspectSession(ctx context.Context, store ports.StateStore, id string, w io.Writer) error {
	snapshot, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", id, err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSessions deletes every session in ids, reporting each outcome. The
// returned error joins the failures.
func RemoveSessions(ctx context.Context, store ports.StateStore, ids []string, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}
