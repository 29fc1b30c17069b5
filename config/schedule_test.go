package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAWSSchedule(t *testing.T) {
	testCases := map[string]struct {
		in      string
		want    string
		wantErr string
	}{
		"rate passthrough":      {in: "rate(1 day)", want: "rate(1 day)"},
		"aws cron passthrough":  {in: "cron(0 12 * * ? *)", want: "cron(0 12 * * ? *)"},
		"every minutes":         {in: "@every 1h30m", want: "rate(90 minutes)"},
		"every single minute":   {in: "@every 1m", want: "rate(1 minute)"},
		"daily preset":          {in: "@daily", want: "cron(0 0 * * ? *)"},
		"midnight preset":       {in: "@midnight", want: "cron(0 0 * * ? *)"},
		"weekly preset":         {in: "@weekly", want: "cron(0 0 ? * 1 *)"},
		"weekdays at nine":      {in: "0 9 * * 1-5", want: "cron(0 9 ? * 2-6 *)"},
		"first of month":        {in: "30 6 1 * *", want: "cron(30 6 1 * ? *)"},
		"sunday is one":         {in: "0 9 * * 0,6", want: "cron(0 9 ? * 1,7 *)"},
		"day names kept":        {in: "0 9 * * MON-FRI", want: "cron(0 9 ? * MON-FRI *)"},
		"stepped weekday range": {in: "0 9 * * 1-5/2", want: "cron(0 9 ? * 2,4,6 *)"},
		"every other day":       {in: "0 9 * * */2", want: "cron(0 9 ? * 1,3,5,7 *)"},
		"stepped day of month":  {in: "0 9 */2 * *", want: "cron(0 9 */2 * ? *)"},
		"both stepped":          {in: "0 9 */2 * */2", wantErr: "cannot specify both day-of-week and day-of-month"},
		"every minute":          {in: "* * * * *", want: "cron(* * * * ? *)"},
		"sub-minute interval":   {in: "@every 30s", wantErr: "duration must be a whole number of minutes or hours"},
		"both dom and dow":      {in: "0 9 1 * 1", wantErr: "cannot specify both day-of-week and day-of-month"},
		"garbage":               {in: "whenever", wantErr: `schedule "whenever" is not a valid cron expression`},
		"empty":                 {in: "  ", wantErr: "schedule is empty"},
		"time zone not allowed": {in: "CRON_TZ=UTC 0 9 * * *", wantErr: "time zones are not supported"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := AWSSchedule(tc.in)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
