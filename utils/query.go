package utils

import "strconv"

func ParseBoolQuery(value string) (*bool, error) {
	if value == "" {
		return nil, nil // not provided
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func ParseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type Page struct {
	Page  int
	Limit int
}

func (p Page) Skip() int64 {
	return int64((p.Page - 1) * p.Limit)
}

// ParsePage clamps page >= 1 and 1 <= limit <= maxLimit.
func ParsePage(page, limit string, defLimit, maxLimit int) Page {
	p := Page{
		Page:  ParseIntDefault(page, 1),
		Limit: ParseIntDefault(limit, defLimit),
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}
