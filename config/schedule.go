package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	fmtRateScheduleExpression = "rate(%d %s)"
	fmtCronScheduleExpression = "cron(%s)"

	cronHourly  = "0 * * * ? *"
	cronDaily   = "0 0 * * ? *"
	cronWeekly  = "0 0 ? * 1 *"
	cronMonthly = "0 0 1 * ? *"
	cronYearly  = "0 0 1 1 ? *"

	every = "@every "
)

// EventBridge expressions are passed through and validated by CloudFormation.
var awsScheduleRegexp = regexp.MustCompile(`^(?:rate|cron)\(.*\)$`)

var presetSchedules = map[string]string{
	"@hourly":   cronHourly,
	"@daily":    cronDaily,
	"@midnight": cronDaily,
	"@weekly":   cronWeekly,
	"@monthly":  cronMonthly,
	"@yearly":   cronYearly,
	"@annually": cronYearly,
}

// AWSSchedule converts a batch transform schedule into an EventBridge
// schedule expression.
//
// Accepted forms:
//
//	rate(1 day), cron(0 12 * * ? *)   passed through
//	@every 1h30m                      rate(90 minutes)
//	@daily, @weekly, ...              cron(0 0 * * ? *), ...
//	0 9 * * 1-5                       cron(0 9 ? * 2-6 *)
func AWSSchedule(schedule string) (string, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return "", errors.New("schedule is empty")
	}
	if awsScheduleRegexp.MatchString(schedule) {
		return schedule, nil
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return "", fmt.Errorf("schedule %q is not a valid cron expression: %w", schedule, err)
	}
	switch {
	case strings.HasPrefix(schedule, every):
		return toRate(schedule[len(every):])
	case strings.HasPrefix(schedule, "@"):
		expr, ok := presetSchedules[schedule]
		if !ok {
			return "", fmt.Errorf("unrecognized preset schedule %s", schedule)
		}
		return fmt.Sprintf(fmtCronScheduleExpression, expr), nil
	case strings.HasPrefix(schedule, "TZ=") || strings.HasPrefix(schedule, "CRON_TZ="):
		return "", errors.New("time zones are not supported in schedules")
	default:
		spec, ok := parsed.(*cron.SpecSchedule)
		if !ok {
			return "", fmt.Errorf("schedule %q is not a five-field cron expression", schedule)
		}
		return toAWSCron(schedule, spec)
	}
}

// toRate converts an "@every" duration into a rate expression in minutes.
func toRate(duration string) (string, error) {
	d, err := time.ParseDuration(strings.TrimSpace(duration))
	if err != nil {
		return "", fmt.Errorf("parse fixed interval: %w", err)
	}
	if d != d.Truncate(time.Minute) {
		return "", errors.New("duration must be a whole number of minutes or hours")
	}
	if d < time.Minute {
		return "", errors.New("duration must be greater than or equal to 1 minute")
	}
	minutes := int(d.Minutes())
	if minutes == 1 {
		return fmt.Sprintf(fmtRateScheduleExpression, minutes, "minute"), nil
	}
	return fmt.Sprintf(fmtRateScheduleExpression, minutes, "minutes"), nil
}

// toAWSCron converts a standard five-field cron into EventBridge syntax:
// either day-of-month or day-of-week becomes "?", day-of-week is shifted to
// one-indexed, and a year field is appended.
func toAWSCron(schedule string, spec *cron.SpecSchedule) (string, error) {
	const (
		dom = 2
		dow = 4
	)
	fields := strings.Fields(schedule)

	switch {
	case !cronFieldSpecified(fields[dom]) && !cronFieldSpecified(fields[dow]):
		fields[dow] = "?"
		fields[dom] = "*"
	case !cronFieldSpecified(fields[dom]):
		fields[dom] = "?"
	case !cronFieldSpecified(fields[dow]):
		fields[dow] = "?"
	default:
		return "", errors.New("cannot specify both day-of-week and day-of-month in cron expression")
	}

	switch {
	case fields[dow] == "?":
	case strings.Contains(fields[dow], "/"):
		// EventBridge has no step syntax for days of the week.
		fields[dow] = listDaysOfWeek(spec.Dow)
	default:
		fields[dow] = shiftDayOfWeek(fields[dow])
	}
	fields = append(fields, "*")

	return fmt.Sprintf(fmtCronScheduleExpression, strings.Join(fields, " ")), nil
}

// shiftDayOfWeek maps the numbers of a zero-indexed day-of-week field
// (Sunday is 0) onto EventBridge's one-indexed days. Day names are kept.
func shiftDayOfWeek(field string) string {
	items := strings.Split(field, ",")
	for i, item := range items {
		bounds := strings.Split(item, "-")
		for j, bound := range bounds {
			if day, err := strconv.Atoi(bound); err == nil {
				bounds[j] = strconv.Itoa(day + 1)
			}
		}
		items[i] = strings.Join(bounds, "-")
	}
	return strings.Join(items, ",")
}

// listDaysOfWeek lists the days set in a parsed day-of-week bitmask as
// one-indexed EventBridge days.
func listDaysOfWeek(bits uint64) string {
	var days []string
	for day := 0; day < 7; day++ {
		if bits&(1<<uint(day)) != 0 {
			days = append(days, strconv.Itoa(day+1))
		}
	}
	return strings.Join(days, ",")
}

// cronFieldSpecified reports whether field restricts the schedule. A bare
// wildcard does not; a stepped wildcard such as "*/2" does.
func cronFieldSpecified(field string) bool {
	return field != "*" && field != "?"
}
