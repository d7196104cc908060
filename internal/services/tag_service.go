package services

import (
	"database/sql"

	"assetbank/internal/constants"
	"assetbank/internal/database"
	"assetbank/internal/logger"
)

// TagService implements tag application, removal and listing.
type TagService struct {
	app    AppState
	logger *logger.Logger
}

func NewTagService(app AppState, log *logger.Logger) *TagService {
	return &TagService{app: app, logger: log}
}

// TagsApplied reports a tag add operation.
type TagsApplied struct {
	Added          []string `json:"added"`
	AlreadyPresent []string `json:"already_present"`
	TotalTags      []string `json:"total_tags"`
}

// TagsRemoved reports a tag remove operation.
type TagsRemoved struct {
	Removed    []string `json:"removed"`
	NotPresent []string `json:"not_present"`
	TotalTags  []string `json:"total_tags"`
}

// TagUsage is one row of a tag listing.
type TagUsage struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// TagsList is a page of tag usages.
type TagsList struct {
	Tags    []TagUsage `json:"tags"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

// ListTagsParams drive the tag listing. HideZero drops tags no visible
// reference carries.
type ListTagsParams struct {
	OwnerID  string
	Prefix   string
	Order    string // count_desc | name_asc
	HideZero bool
	Limit    int
	Offset   int
}

// Apply attaches tags to a reference visible to owner.
func (s *TagService) Apply(refID, ownerID string, tags []string) (*TagsApplied, error) {
	var out TagsApplied
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		ref, err := database.GetReferenceByID(tx, refID, ownerID)
		if err != nil {
			return err
		}
		if ref == nil {
			return ErrAssetNotFound
		}
		added, present, err := database.AddTagsToReference(tx, refID, tags, constants.TagOriginUser)
		if err != nil {
			return err
		}
		total, err := database.GetReferenceTags(tx, refID)
		if err != nil {
			return err
		}
		out = TagsApplied{
			Added:          stringsOrEmpty(added),
			AlreadyPresent: stringsOrEmpty(present),
			TotalTags:      stringsOrEmpty(total),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove detaches tags from a reference visible to owner.
func (s *TagService) Remove(refID, ownerID string, tags []string) (*TagsRemoved, error) {
	var out TagsRemoved
	err := database.WithTx(s.app.GetDB(), func(tx *sql.Tx) error {
		ref, err := database.GetReferenceByID(tx, refID, ownerID)
		if err != nil {
			return err
		}
		if ref == nil {
			return ErrAssetNotFound
		}
		removed, notPresent, err := database.RemoveTagsFromReference(tx, refID, tags)
		if err != nil {
			return err
		}
		total, err := database.GetReferenceTags(tx, refID)
		if err != nil {
			return err
		}
		out = TagsRemoved{
			Removed:    stringsOrEmpty(removed),
			NotPresent: stringsOrEmpty(notPresent),
			TotalTags:  stringsOrEmpty(total),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns tags with usage counts scoped to what the owner can see.
func (s *TagService) List(p ListTagsParams) (*TagsList, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = constants.DefaultPageLimit
	}
	if limit > constants.MaxTagPageLimit {
		limit = constants.MaxTagPageLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	order := p.Order
	if order != "name_asc" {
		order = "count_desc"
	}

	rows, total, err := database.ListTagsWithUsage(s.app.GetDB(), p.OwnerID, p.Prefix, order, !p.HideZero, limit, offset)
	if err != nil {
		return nil, err
	}
	out := &TagsList{Total: total, Tags: []TagUsage{}}
	for _, r := range rows {
		out.Tags = append(out.Tags, TagUsage{Name: r.Name, Type: r.Type, Count: r.Count})
	}
	out.HasMore = offset+len(out.Tags) < total
	return out, nil
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
