package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pku-elective/autoelective/internal/course"
)

// quotaPairRe extracts a "10/9" style max/used quota cell, tolerating
// surrounding whitespace and full-width slashes the site occasionally
// emits.
var quotaPairRe = regexp.MustCompile(`(\d+)\s*[/／]\s*(\d+)`)

// confirmSelectRe pulls the course name out of a confirmSelect(...) JS
// callback, the fallback the site uses in place of a plain-text cell
// for some listing rows (observed on rows with an inline "select"
// button rather than a static name).
var confirmSelectRe = regexp.MustCompile(`confirmSelect\([^,]*,\s*'([^']*)'`)

// GetTables returns every <table> element in the document that looks
// like a course listing (has at least one header cell containing
// "课程名" or "序号").
func GetTables(doc *goquery.Document) []*goquery.Selection {
	var tables []*goquery.Selection

	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		header := tbl.Find("tr").First()
		headerText := header.Text()
		if strings.Contains(headerText, "课程名") || strings.Contains(headerText, "序号") {
			sel := tbl
			tables = append(tables, sel)
		}
	})
	return tables
}

// headerIndex maps a header keyword to the column index it occupies in
// a given table, tolerating the site's occasional column reordering
// across terms.
func headerIndex(header *goquery.Selection) map[string]int {
	idx := make(map[string]int)
	header.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		idx[text] = i
	})
	return idx
}

// cellText returns the trimmed text of row's i-th cell, or "" if the
// row is shorter than that.
func cellText(cells *goquery.Selection, i int) string {
	if i < 0 {
		return ""
	}
	cell := cells.Eq(i)
	if cell.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(cell.Text())
}

// cellNameWithFallback reads a course-name cell, falling back to
// extracting the name out of a confirmSelect(...) onclick attribute
// when the cell's text content is empty (the site renders some rows as
// a button rather than static text).
func cellNameWithFallback(cells *goquery.Selection, i int) string {
	text := cellText(cells, i)
	if text != "" {
		return text
	}
	cell := cells.Eq(i)
	if cell.Length() == 0 {
		return ""
	}
	onclick, _ := cell.Find("a, input, button").Attr("onclick")
	if m := confirmSelectRe.FindStringSubmatch(onclick); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseQuotaPair splits a "max/used" cell (限数/已选, max-quota first)
// into (used, max). Returns zero values if the cell doesn't match the
// expected shape.
func parseQuotaPair(text string) (used, max int) {
	m := quotaPairRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0
	}
	max, _ = strconv.Atoi(m[1])
	used, _ = strconv.Atoi(m[2])
	return used, max
}

// rowHref returns the first href/onclick-carrying anchor's identifying
// attribute in the row, used to submit an election against the exact
// listing row a course was parsed from.
func rowHref(cells *goquery.Selection) string {
	var href string
	cells.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if h, ok := a.Attr("href"); ok && h != "" {
			href = h
			return false
		}
		if oc, ok := a.Attr("onclick"); ok && oc != "" {
			href = oc
			return false
		}
		return true
	})
	return href
}

// GetCourses parses every course-listing table in doc into Course
// values, tolerating header-column reordering and confirmSelect(...)
// name fallbacks. Rows that can't be matched to a name+school are
// skipped rather than aborting the whole table.
func GetCourses(doc *goquery.Document) []course.Course {
	var out []course.Course

	for _, tbl := range GetTables(doc) {
		rows := tbl.Find("tr")
		if rows.Length() < 2 {
			continue
		}
		header := rows.First()
		idx := headerIndex(header)

		nameCol, hasName := indexOf(idx, "课程名")
		schoolCol, hasSchool := indexOf(idx, "开课单位")
		classNoCol, hasClassNo := indexOf(idx, "班号")
		quotaCol, hasQuota := indexOf(idx, "限数/已选", "余额")
		if !hasName {
			continue
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}
			name := cellNameWithFallback(cells, nameCol)
			if name == "" {
				return
			}
			var school, classNo string
			if hasSchool {
				school = cellText(cells, schoolCol)
			}
			if hasClassNo {
				classNo = cellText(cells, classNoCol)
			}
			var used, max int
			if hasQuota {
				used, max = parseQuotaPair(cellText(cells, quotaCol))
			}
			out = append(out, course.Course{
				Identity: course.Identity{
					Name:    name,
					ClassNo: classNo,
					School:  school,
				},
				MaxQuota:  max,
				UsedQuota: used,
				Href:      rowHref(cells),
			})
		})
	}
	return out
}

// GetCoursesWithDetail is GetCourses with the listing index/href always
// populated, the shape the election loop needs to submit a draw
// request against a specific row. Currently identical to GetCourses;
// split out so detail-only enrichment (e.g. seat history) has a single
// place to land without disturbing the plain listing parse.
func GetCoursesWithDetail(doc *goquery.Document) []course.Course {
	return GetCourses(doc)
}

func indexOf(idx map[string]int, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := idx[k]; ok {
			return v, true
		}
	}
	return 0, false
}

// GetTitle returns the document's <title> text, trimmed.
func GetTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// GetSida extracts the "sida" hidden-field value some post-draw pages
// embed, used to correlate a CAPTCHA draw with its validate call.
func GetSida(doc *goquery.Document) (string, bool) {
	val, ok := doc.Find(`input[name="sida"]`).First().Attr("value")
	return val, ok
}
