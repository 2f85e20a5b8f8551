package broadcast

import "tgbroadcast/internal/transport"

// ResolveRecipients returns the distinct senders found in updates, in the order
// they were first seen. Updates without a sender are skipped.
func ResolveRecipients(updates []transport.Update) []int64 {
	if len(updates) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(updates))
	out := make([]int64, 0, len(updates))
	for _, u := range updates {
		id, ok := u.SenderID()
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
