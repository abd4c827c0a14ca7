package answer

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/answerline/answer-engine/internal/planner"
	"github.com/answerline/answer-engine/internal/retrieval"
)

// nameColumns lists the header names that identify a person, in preference
// order. Names are in normalized header form.
var nameColumns = []string{
	"employee_name", "name", "employee", "empname", "full_name", "employee_full_name",
}

// columnAliases maps each askable field to the normalized header names that
// may carry it.
var columnAliases = map[planner.Field][]string{
	planner.FieldSalary:           {"salary", "annual_salary", "salary_amount", "pay", "compensation", "wage"},
	planner.FieldDepartment:       {"department", "dept", "division", "team", "unit"},
	planner.FieldManager:          {"manager", "manager_name", "supervisor", "reporting_manager"},
	planner.FieldEmploymentStatus: {"employment_status", "employmentstatus", "status", "work_status"},
	planner.FieldPosition:         {"position", "title", "job_title", "role", "designation"},
	planner.FieldLocation:         {"location", "office", "site", "workplace"},
}

var fieldLabels = map[planner.Field]string{
	planner.FieldSalary:           "salary",
	planner.FieldDepartment:       "department",
	planner.FieldManager:          "manager",
	planner.FieldEmploymentStatus: "employment status",
	planner.FieldPosition:         "position",
	planner.FieldLocation:         "location",
}

// tabular answers person-attribute questions from tabular row chunks. It is
// authoritative for its domain: an unknown person or an empty field escalates
// instead of falling through to generic retrieval.
func (e *Engine) tabular(in Input) *Result {
	person := in.Plan.Person
	variants := nameVariants(person)

	row, doc, found := findPersonRow(in.Corpus, variants)
	if !found {
		return &Result{
			Response: fmt.Sprintf(
				"I couldn't find any records for %s. Please verify the name spelling or check if this person exists in the employee database.",
				person),
			Citations:     []Citation{},
			Confidence:    0,
			RequiresHuman: true,
		}
	}

	canonical := row.name
	in.Context.LastPerson = canonical

	value := fieldValue(row, doc.Columns, in.Plan.Field)
	if strings.TrimSpace(value) == "" {
		return &Result{
			Response: fmt.Sprintf(
				"I found %s in the database, but their %s information is not available or empty in the records.",
				canonical, fieldLabels[in.Plan.Field]),
			Citations:     []Citation{},
			Confidence:    0,
			RequiresHuman: true,
		}
	}

	return &Result{
		Response:      formatField(in.Plan.Field, canonical, value),
		Citations:     []Citation{citationAt(retrieval.ScoredDocument{Document: doc}, 0)},
		Confidence:    0.95,
		RequiresHuman: false,
	}
}

type personRow struct {
	cells []string
	name  string
}

// nameVariants returns the normalized forms a person reference can take:
// the input itself plus, for "Last, First" inputs, the "First Last" swap.
func nameVariants(person string) []string {
	variants := []string{normalizeName(person)}
	if idx := strings.Index(person, ","); idx >= 0 {
		last := strings.TrimSpace(person[:idx])
		first := strings.TrimSpace(person[idx+1:])
		if last != "" && first != "" {
			variants = append(variants, normalizeName(first+" "+last))
		}
	}
	return variants
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// findPersonRow scans tabular documents for a row whose name cell matches a
// variant. Preferred name columns are tried first; failing that, any cell
// that equals a variant identifies the row.
func findPersonRow(corpus []retrieval.Document, variants []string) (personRow, retrieval.Document, bool) {
	for _, doc := range corpus {
		if len(doc.Columns) == 0 {
			continue
		}

		cells, err := parseRow(doc.Content, len(doc.Columns))
		if err != nil {
			continue
		}

		nameIdx := -1
		for _, nameCol := range nameColumns {
			for i, col := range doc.Columns {
				if col == nameCol {
					nameIdx = i
					break
				}
			}
			if nameIdx >= 0 {
				break
			}
		}

		if nameIdx >= 0 && nameIdx < len(cells) {
			if matchesVariant(cells[nameIdx], variants) {
				return personRow{cells: cells, name: strings.TrimSpace(cells[nameIdx])}, doc, true
			}
			continue
		}

		for _, cell := range cells {
			if matchesVariant(cell, variants) {
				return personRow{cells: cells, name: strings.TrimSpace(cell)}, doc, true
			}
		}
	}
	return personRow{}, retrieval.Document{}, false
}

func matchesVariant(cell string, variants []string) bool {
	normalized := normalizeName(cell)
	for _, v := range variants {
		if normalized == v {
			return true
		}
	}
	return false
}

func parseRow(content string, width int) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	cells, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for len(cells) < width {
		cells = append(cells, "")
	}
	return cells, nil
}

func fieldValue(row personRow, columns []string, field planner.Field) string {
	for _, alias := range columnAliases[field] {
		for i, col := range columns {
			if col == alias && i < len(row.cells) {
				return strings.TrimSpace(row.cells[i])
			}
		}
	}
	return ""
}

func formatField(field planner.Field, name, value string) string {
	switch field {
	case planner.FieldSalary:
		return fmt.Sprintf("The salary of %s is %s.", name, formatMoney(value))
	case planner.FieldManager:
		return fmt.Sprintf("The manager of %s is %s.", name, value)
	case planner.FieldDepartment:
		return fmt.Sprintf("%s works in the %s department.", name, value)
	case planner.FieldPosition:
		return fmt.Sprintf("%s works as a %s.", name, value)
	case planner.FieldLocation:
		return fmt.Sprintf("%s is located in %s.", name, value)
	case planner.FieldEmploymentStatus:
		return fmt.Sprintf("The employment status of %s is %s.", name, value)
	default:
		return fmt.Sprintf("The %s of %s is %s.", fieldLabels[field], name, value)
	}
}

// formatMoney renders a numeric value as dollars with thousands separators;
// a non-numeric value passes through unchanged.
func formatMoney(value string) string {
	clean := strings.TrimLeft(strings.ReplaceAll(strings.TrimSpace(value), ",", ""), "$")
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return value
	}

	n := int64(f)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	digits := strconv.FormatInt(n, 10)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	return sign + "$" + strings.Join(groups, ",")
}
