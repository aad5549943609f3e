package tools

import (
	"fmt"
	"time"

	"github.com/julianstephens/flux/internal/constants"
	"github.com/julianstephens/flux/internal/models"
)

// SystemPrompt renders the agent persona with the current date and the
// number of blocks on the active plan.
func SystemPrompt(st models.State, now time.Time) string {
	blocks := 0
	if plan := st.ActivePlan(); plan != nil {
		blocks = len(plan.Blocks)
	}
	return fmt.Sprintf(constants.AgentPromptTemplate, now.Format("Monday, January 2, 2006 3:04 PM"), blocks)
}
