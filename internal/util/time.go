package util

import "time"

var loc = time.UTC

func SetLocation(l *time.Location) {
	loc = l
}

func Now() time.Time {
	return time.Now().In(loc)
}
