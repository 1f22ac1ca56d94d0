package graph

import (
	"context"
	"net/http"
	"net/url"
)

// CategoryColors is the desired Outlook master-category palette.
// Graph only accepts the CategoryColor enum (none, preset0..preset24):
// bright presets for urgency, darker variants for completion states.
var CategoryColors = map[string]string{
	"Urgent":            "preset0",  // bright red
	"Priority 1":        "preset1",  // orange
	"Priority 2":        "preset3",  // yellow
	"Priority 3":        "preset4",  // green
	"Marketing":         "preset5",  // teal
	"Informational":     "preset7",  // blue
	"No reply needed":   "preset12", // gray
	"Complete":          "preset19", // dark green
	"Possibly Complete": "preset18", // dark yellow
	"Processed":         "preset13", // dark gray
}

// Category plan actions.
const (
	CategoryCreate    = "create"
	CategoryUpdate    = "update"
	CategoryUnchanged = "unchanged"
)

// CategoryStep is one operation needed to align a master category
// with its desired colour.
type CategoryStep struct {
	Action string
	Color  string
	ID     string
}

// PlanCategoryUpdates diffs desired colours against existing master
// categories. Pure; the caller applies the steps.
func PlanCategoryUpdates(desired map[string]string, existing []MasterCategory) map[string]CategoryStep {
	byName := make(map[string]MasterCategory, len(existing))
	for _, c := range existing {
		if c.DisplayName != "" {
			byName[c.DisplayName] = c
		}
	}

	plan := make(map[string]CategoryStep, len(desired))
	for name, color := range desired {
		current, ok := byName[name]
		switch {
		case !ok:
			plan[name] = CategoryStep{Action: CategoryCreate, Color: color}
		case current.Color != color:
			plan[name] = CategoryStep{Action: CategoryUpdate, Color: color, ID: current.ID}
		default:
			plan[name] = CategoryStep{Action: CategoryUnchanged, Color: color, ID: current.ID}
		}
	}
	return plan
}

// ListMasterCategories returns all master categories of the mailbox.
func (c *Client) ListMasterCategories(ctx context.Context) ([]MasterCategory, error) {
	rawURL := c.userRoot() + "/outlook/masterCategories?" + url.Values{
		"$select": {"id,displayName,color"},
	}.Encode()

	var out []MasterCategory
	for rawURL != "" {
		var page struct {
			Value    []MasterCategory `json:"value"`
			NextLink string           `json:"@odata.nextLink"`
		}
		if err := c.do(ctx, http.MethodGet, rawURL, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Value...)
		rawURL = page.NextLink
	}
	return out, nil
}

// CreateMasterCategory creates a master category with a colour.
func (c *Client) CreateMasterCategory(ctx context.Context, displayName, color string) error {
	body := MasterCategory{DisplayName: displayName, Color: color}
	return c.do(ctx, http.MethodPost, c.userRoot()+"/outlook/masterCategories", body, nil)
}

// UpdateMasterCategory changes the colour of an existing category.
func (c *Client) UpdateMasterCategory(ctx context.Context, id, color string) error {
	body := map[string]string{"color": color}
	return c.do(ctx, http.MethodPatch, c.userRoot()+"/outlook/masterCategories/"+url.PathEscape(id), body, nil)
}

// EnsureMasterCategories creates or recolours master categories so the
// mailbox renders the expected palette before tagging. Safe to call
// repeatedly. Returns the action taken per category.
func (c *Client) EnsureMasterCategories(ctx context.Context, desired map[string]string) (map[string]string, error) {
	existing, err := c.ListMasterCategories(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(desired))
	for name, step := range PlanCategoryUpdates(desired, existing) {
		switch step.Action {
		case CategoryCreate:
			if err := c.CreateMasterCategory(ctx, name, step.Color); err != nil {
				return results, err
			}
		case CategoryUpdate:
			if step.ID == "" {
				if err := c.CreateMasterCategory(ctx, name, step.Color); err != nil {
					return results, err
				}
				step.Action = CategoryCreate
			} else if err := c.UpdateMasterCategory(ctx, step.ID, step.Color); err != nil {
				return results, err
			}
		}
		results[name] = step.Action
	}
	return results, nil
}
