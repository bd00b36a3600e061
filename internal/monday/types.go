package monday

// NotAvailable is stored in Text and RawValue when the API returned null.
const NotAvailable = "N/A"

// PageSize caps items_page queries. Boards with more items are truncated.
const PageSize = 100

// BoardItem is a board row normalized to a flat field list.
type BoardItem struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Fields []ColumnValue `json:"fields"`
}

// ColumnValue is one column of a board item. RawValue is usually JSON.
type ColumnValue struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	RawValue string `json:"raw_value"`
}

// Field returns the column with the given id.
func (b BoardItem) Field(id string) (ColumnValue, bool) {
	for _, f := range b.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return ColumnValue{}, false
}

// Kit is a selectable kit from the kits board.
type Kit struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// graphQLRequest is the POST body for the API endpoint.
type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type rawColumnValue struct {
	ID     string  `json:"id"`
	Text   *string `json:"text"`
	Value  *string `json:"value"`
	Column *struct {
		Title string `json:"title"`
	} `json:"column,omitempty"`
}

type rawItem struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	ColumnValues []rawColumnValue `json:"column_values"`
}

type boardsResponse struct {
	Data *struct {
		Boards []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Columns []struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"columns"`
			ItemsPage struct {
				Items []rawItem `json:"items"`
			} `json:"items_page"`
		} `json:"boards"`
	} `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type itemsResponse struct {
	Data *struct {
		Items []rawItem `json:"items"`
	} `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

const boardQuery = `query ($ids: [ID!]) {
  boards(ids: $ids) {
    id
    name
    columns { id title }
    items_page(limit: 100) {
      items {
        id
        name
        column_values { id text value }
      }
    }
  }
}`

const itemQuery = `query ($ids: [ID!]) {
  items(ids: $ids) {
    id
    name
    column_values { id text value column { title } }
  }
}`

func normalizeItem(item rawItem, titles map[string]string) BoardItem {
	out := BoardItem{
		ID:     item.ID,
		Name:   item.Name,
		Fields: make([]ColumnValue, 0, len(item.ColumnValues)),
	}
	for _, cv := range item.ColumnValues {
		title := titles[cv.ID]
		if title == "" && cv.Column != nil {
			title = cv.Column.Title
		}
		if title == "" {
			title = cv.ID
		}
		out.Fields = append(out.Fields, ColumnValue{
			ID:       cv.ID,
			Title:    title,
			Text:     orNA(cv.Text),
			RawValue: orNA(cv.Value),
		})
	}
	return out
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return NotAvailable
	}
	return *s
}
