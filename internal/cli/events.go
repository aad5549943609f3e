package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
)

type EventsCmd struct {
	Limit int  `short:"n" help:"Number of events to show, newest first." default:"${event_limit}"`
	JSON  bool `help:"Print events as JSON."`
}

func (c *EventsCmd) Run(ctx *Context) error {
	if c.Limit <= 0 {
		c.Limit = constants.EventFeedLimit
	}
	svc, err := ctx.Services()
	if err != nil {
		return err
	}

	var events []models.Event
	err = svc.Runtime.View(context.Background(), ctx.user(), func(st models.State) {
		events = st.RecentEvents(c.Limit)
	})
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal events: %w", err)
		}
		ctx.println(string(data))
		return nil
	}
	renderEvents(ctx.Out, events, svc.Location)
	return nil
}
