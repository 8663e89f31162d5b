// Package partition derives the active, history and archive views of a
// unit's requests from a snapshot.
package partition

import (
	"sort"

	"barangay/api/internal/domain"
)

type Views struct {
	Active  []domain.Request `json:"active"`
	History []domain.Request `json:"history"`
	Archive []domain.Request `json:"archive"`
}

func (v Views) Len() int {
	return len(v.Active) + len(v.History) + len(v.Archive)
}

// Split places every record of the requested certificate type in exactly
// one view, newest request date first. An empty certType keeps all types.
func Split(records []domain.Request, certType domain.CertificateType) Views {
	views := Views{
		Active:  []domain.Request{},
		History: []domain.Request{},
		Archive: []domain.Request{},
	}
	for _, req := range records {
		if certType != "" && req.CertificateType != certType {
			continue
		}
		switch req.Status {
		case domain.StatusAccepted:
			views.History = append(views.History, req)
		case domain.StatusDeclined:
			views.Archive = append(views.Archive, req)
		default:
			// pending and processing; the store never yields any other status
			views.Active = append(views.Active, req)
		}
	}
	SortNewestFirst(views.Active)
	SortNewestFirst(views.History)
	SortNewestFirst(views.Archive)
	return views
}

func SortNewestFirst(items []domain.Request) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.RequestDate.Equal(b.RequestDate) {
			return a.RequestDate.After(b.RequestDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
