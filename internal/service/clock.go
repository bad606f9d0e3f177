package service

import "time"

// timeNow is swapped out by tests that exercise time-window boundaries.
var timeNow = time.Now
