package chat

import "time"

// ISOFormat is the wire and storage timestamp layout: UTC with millisecond
// precision, matching what the UI renders.
const ISOFormat = "2006-01-02T15:04:05.000Z"

func ISONow() string {
	return time.Now().UTC().Format(ISOFormat)
}

func ParseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
