package layout

import "time"

// ShortDate formats an axis date label, e.g. "Mar 4".
func ShortDate(t time.Time) string { return t.Format("Jan 2") }

// LongDate formats a tooltip title, e.g. "March 4, 2020".
func LongDate(t time.Time) string { return t.Format("January 2, 2006") }
