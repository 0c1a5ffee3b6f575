package transcript

import (
	"strings"

	"deckpilot/internal/protocol"
)

// StartPlan reveals plan steps one at a time into the plan row. A batch
// arriving within the inactivity window of the previous one accumulates on
// the same row; otherwise a new plan row starts. Steps already shown (by
// title) only get their status refreshed.
func (c *Controller) StartPlan(steps []protocol.PlanStep) string {
	var id string
	if !hasTitledStep(steps) {
		return ""
	}
	c.update(func() bool {
		now := c.clock.Now()
		i := c.indexOf(c.planID)
		created := false
		if i < 0 || now.Sub(c.planLastAt) > c.planIdle {
			c.stopPlan()
			row := c.newRow(RolePlan, "")
			c.rows = append(c.rows, row)
			c.planID = row.ID
			i = len(c.rows) - 1
			created = true
		}
		c.planLastAt = now
		id = c.planID

		changed := false
		row := &c.rows[i]
		for _, step := range steps {
			title := strings.TrimSpace(step.Title)
			if title == "" {
				continue
			}
			step.Title = title
			if j := stepIndex(row.Steps, title); j >= 0 {
				if step.Status != "" && row.Steps[j].Status != step.Status {
					row.Steps[j].Status = step.Status
					changed = true
				}
				continue
			}
			if j := stepIndex(c.planQueue, title); j >= 0 {
				if step.Status != "" {
					c.planQueue[j].Status = step.Status
				}
				continue
			}
			c.planQueue = append(c.planQueue, step)
		}
		if len(c.planQueue) > 0 && c.planTimer == nil {
			c.scheduleReveal()
		}
		return changed || created
	})
	return id
}

func hasTitledStep(steps []protocol.PlanStep) bool {
	for _, s := range steps {
		if strings.TrimSpace(s.Title) != "" {
			return true
		}
	}
	return false
}

func stepIndex(steps []protocol.PlanStep, title string) int {
	for i := range steps {
		if steps[i].Title == title {
			return i
		}
	}
	return -1
}

// scheduleReveal must be called with the lock held.
func (c *Controller) scheduleReveal() {
	version := c.planVersion
	c.planTimer = c.sched.AfterFunc(c.planStep, func() {
		c.revealNext(version)
	})
}

func (c *Controller) revealNext(version int) {
	c.update(func() bool {
		if version != c.planVersion {
			return false
		}
		c.planTimer = nil
		if len(c.planQueue) == 0 {
			return false
		}
		i := c.indexOf(c.planID)
		if i < 0 {
			c.planQueue = nil
			return false
		}
		step := c.planQueue[0]
		c.planQueue = c.planQueue[1:]
		c.rows[i].Steps = append(c.rows[i].Steps, step)
		if len(c.planQueue) > 0 {
			c.scheduleReveal()
		}
		return true
	})
}

// stopPlan cancels a pending reveal and drops unrevealed steps. Callers
// hold the lock.
func (c *Controller) stopPlan() {
	if c.planTimer != nil {
		c.planTimer.Stop()
		c.planTimer = nil
	}
	c.planQueue = nil
	c.planVersion++
}

// PlanPending reports how many steps are waiting to be revealed.
func (c *Controller) PlanPending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.planQueue)
}
