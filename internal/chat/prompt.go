package chat

import (
	"context"
	"fmt"
	"strings"
)

const systemPromptHeader = `You are FareWatch, a vacation price tracking assistant. You help users ` +
	`create trips, watch flight and hotel fares, and set price alerts.

Use the available tools to look up or change the user's trips; never invent prices or trip data. ` +
	`When a tool reports missing fields, the user will be shown a form, so do not ask for the fields yourself.`

const scopeStatement = `Only discuss travel planning and price tracking. If the user asks about ` +
	`anything else, politely steer the conversation back to their trips.`

// buildSystemPrompt composes the per-request system prompt: assistant
// identity, the user's current trips with latest prices, and the scope
// statement. A snapshot failure degrades to a prompt without trips.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, req *Request) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\n")

	name := req.UserName
	if name == "" {
		name = "the user"
	}
	fmt.Fprintf(&b, "You are talking to %s.\n", name)

	o.writeSnapshot(ctx, &b, req.UserID)

	b.WriteString("\n")
	b.WriteString(scopeStatement)
	return b.String()
}

func (o *Orchestrator) writeSnapshot(ctx context.Context, b *strings.Builder, userID string) {
	if o.trips == nil {
		return
	}
	list, err := o.trips.List(ctx, userID)
	if err != nil {
		o.logger.Warn("trip snapshot unavailable", "user_id", userID, "error", err)
		return
	}
	if len(list) == 0 {
		b.WriteString("The user is not tracking any trips yet.\n")
		return
	}

	fmt.Fprintf(b, "The user is tracking %d trip(s):\n", len(list))
	for _, trip := range list {
		fmt.Fprintf(b, "- %s (id %s): %s to %s, %s to %s", trip.Name, trip.ID,
			trip.OriginAirport, trip.DestinationCode, trip.DepartDate, trip.ReturnDate)
		if trip.Paused {
			b.WriteString(", paused")
		}
		if trip.NotifyThreshold > 0 {
			fmt.Fprintf(b, ", alert when %s %.2f", trip.NotifyDirection, trip.NotifyThreshold)
		}
		b.WriteString("\n")

		quotes, err := o.trips.LatestQuotes(ctx, trip.ID, userID)
		if err != nil {
			continue
		}
		for _, q := range quotes {
			fmt.Fprintf(b, "  latest %s price: %.2f %s (%s)\n",
				q.Kind, q.Amount, q.Currency, q.ObservedAt.Format("2006-01-02"))
		}
	}
}
