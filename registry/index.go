/*
index.go - Assignment lookup structures

PURPOSE:
  Builds worker-keyed and company-keyed views of the flat assignment list,
  plus the first-seen display label per company id used as a resolution
  fallback elsewhere. Single pass, O(n); re-derived whenever the assignment
  list changes instead of cached.
*/
package registry

// AssignmentIndexes holds the derived lookup structures over a flat
// assignment list.
type AssignmentIndexes struct {
	ByWorker      map[string][]Assignment
	ByCompany     map[string][]Assignment
	CompanyLabels map[string]string
}

// BuildIndexes derives the lookup structures in one pass. CompanyLabels
// records the FIRST seen display name per company id; later spellings do
// not overwrite it.
func BuildIndexes(assignments []Assignment) AssignmentIndexes {
	idx := AssignmentIndexes{
		ByWorker:      make(map[string][]Assignment),
		ByCompany:     make(map[string][]Assignment),
		CompanyLabels: make(map[string]string),
	}

	for _, a := range assignments {
		if workerKey, ok := NormalizeKey(a.WorkerID); ok {
			idx.ByWorker[workerKey] = append(idx.ByWorker[workerKey], a)
		}

		company := BuildCompanyIdentity(a.CompanyID, a.CompanyName)
		idx.ByCompany[company.ID] = append(idx.ByCompany[company.ID], a)
		if _, seen := idx.CompanyLabels[company.ID]; !seen {
			idx.CompanyLabels[company.ID] = company.Name
		}
	}
	return idx
}

// GroupByWorker projects assignments into one GroupView per worker with
// per-day totals over the given range.
func GroupByWorker(assignments []Assignment, ctx *ResolutionContext, days []DayDescriptor) []GroupView {
	idx := BuildIndexes(assignments)
	groups := make([]GroupView, 0, len(idx.ByWorker))
	for workerID, rows := range idx.ByWorker {
		name := workerID
		if len(rows) > 0 && rows[0].WorkerName != "" {
			name = rows[0].WorkerName
		}
		groups = append(groups, GroupView{
			ID:          workerID,
			Name:        name,
			Assignments: rows,
			Totals:      DayTotals(rows, ctx, days),
		})
	}
	return groups
}

// GroupByCompany projects assignments into one GroupView per company.
func GroupByCompany(assignments []Assignment, ctx *ResolutionContext, days []DayDescriptor) []GroupView {
	idx := BuildIndexes(assignments)
	groups := make([]GroupView, 0, len(idx.ByCompany))
	for companyID, rows := range idx.ByCompany {
		groups = append(groups, GroupView{
			ID:          companyID,
			Name:        idx.CompanyLabels[companyID],
			Assignments: rows,
			Totals:      DayTotals(rows, ctx, days),
		})
	}
	return groups
}
