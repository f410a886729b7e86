package wrangling

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-platform/internal/models"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     bool
		checkValues func(*testing.T, []models.CounterRecord)
	}{
		{
			name: "combined date layout",
			input: "Zählstelle 1001,Mo,1.1,2015\n" +
				"Stunde,Pkw,Lkw,Summe\n" +
				"1:00,10,2,12\n" +
				"2:00,8,1,9\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 2)
				assert.Equal(t, "1001", recs[0].StationID)
				assert.Equal(t, "01.01.2015", recs[0].Date)
				assert.Equal(t, "1:00", recs[0].HourBucket)
				assert.Equal(t, 10, recs[0].PassengerCount)
				assert.Equal(t, 2, recs[0].FreightCount)
				assert.Equal(t, 12, recs[0].TotalCount)
				assert.Equal(t, 3, recs[0].Line)
				assert.Equal(t, 4, recs[1].Line)
			},
		},
		{
			name: "separate date layout with padded parts and year suffix",
			input: "Zählstelle 1002,Di, 2, 3,2016 (Mär)\n" +
				"13:00,100,20,120\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 1)
				assert.Equal(t, "1002", recs[0].StationID)
				assert.Equal(t, "02.03.2016", recs[0].Date)
			},
		},
		{
			name: "combined layout with spaces and long year field",
			input: "Zählstelle 1003,Fr,31. 12,2017xyz\n" +
				"24:00:00,5,0,5\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 1)
				assert.Equal(t, "31.12.2017", recs[0].Date)
				assert.Equal(t, "24:00:00", recs[0].HourBucket)
			},
		},
		{
			name: "quotes are stripped",
			input: "\"Zählstelle 1001\",\"Mo\",\"5.1\",\"2015\"\n" +
				"\"07:00\",\"1.234\",\"56\",\"1.290\"\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 1)
				assert.Equal(t, "05.01.2015", recs[0].Date)
				assert.Equal(t, "07:00", recs[0].HourBucket)
				assert.Equal(t, 1234, recs[0].PassengerCount)
				assert.Equal(t, 1290, recs[0].TotalCount)
			},
		},
		{
			name: "header switches the active context",
			input: "Zählstelle 1001,Mo,1.1,2015\n" +
				"1:00,1,1,2\n" +
				"Zaehlstelle 2002,Di,2.1,2015\n" +
				"1:00,3,3,6\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 2)
				assert.Equal(t, "1001", recs[0].StationID)
				assert.Equal(t, "01.01.2015", recs[0].Date)
				assert.Equal(t, "2002", recs[1].StationID)
				assert.Equal(t, "02.01.2015", recs[1].Date)
			},
		},
		{
			name: "windows line endings and byte order mark",
			input: "\ufeffZählstelle 1001,Mo,1.1,2015\r\n" +
				"1:00,10,2,12\r\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				require.Len(t, recs, 1)
				assert.Equal(t, 12, recs[0].TotalCount)
			},
		},
		{
			name:  "irrelevant lines only",
			input: "Summary\n\nTotal,100\n",
			checkValues: func(t *testing.T, recs []models.CounterRecord) {
				assert.Empty(t, recs)
			},
		},
		{
			name:    "invalid calendar date",
			input:   "Zählstelle 1001,Mo,31.2,2015\n1:00,1,1,2\n",
			wantErr: true,
		},
		{
			name:    "data row before header",
			input:   "1:00,1,1,2\n",
			wantErr: true,
		},
		{
			name:    "non integer count",
			input:   "Zählstelle 1001,Mo,1.1,2015\n1:00,x,1,2\n",
			wantErr: true,
		},
		{
			name:    "missing count",
			input:   "Zählstelle 1001,Mo,1.1,2015\n1:00,1,1\n",
			wantErr: true,
		},
		{
			name:    "header without station id",
			input:   "Zählstelle,Mo,1.1,2015\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Extract(strings.NewReader(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				var perr *models.ParseError
				assert.True(t, errors.As(err, &perr), "expected ParseError, got %T", err)
				return
			}
			require.NoError(t, err)
			if tt.checkValues != nil {
				tt.checkValues(t, recs)
			}
		})
	}
}

func TestExtract_ParseErrorLine(t *testing.T) {
	input := "Zählstelle 1001,Mo,1.1,2015\n" +
		"1:00,1,1,2\n" +
		"2:00,1,1,2\n" +
		"3:00,1,?,2\n"

	_, err := Extract(strings.NewReader(input))
	require.Error(t, err)

	var perr *models.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 4, perr.Line)
	assert.Equal(t, "3:00,1,?,2", perr.Text)
}

func TestExtract_NegativeCount(t *testing.T) {
	input := "Zählstelle 1001,Mo,1.1,2015\n" +
		"1:00,1,-5,2\n"

	_, err := Extract(strings.NewReader(input))
	var perr *models.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Line)
	assert.Contains(t, perr.Reason, "negative vehicle count")
}

func TestExtract_Windows1252Header(t *testing.T) {
	// 0xE4 is ä in Windows-1252
	input := "Z\xe4hlstelle 3003,Mo,1.1,2015\n1:00,4,1,5\n"

	recs, err := Extract(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "3003", recs[0].StationID)
}

func TestExtract_MojibakeHeader(t *testing.T) {
	input := "ZÃ¤hlstelle 3003,Mo,1.1,2015\n1:00,4,1,5\n"

	recs, err := Extract(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestHeaderDate(t *testing.T) {
	tests := []struct {
		fields  []string
		want    string
		wantErr bool
	}{
		{fields: []string{"Zählstelle 1", "Mo", "1.1", "2015"}, want: "01.01.2015"},
		{fields: []string{"Zählstelle 1", "Mo", "10.11", "2015 "}, want: "10.11.2015"},
		{fields: []string{"Zählstelle 1", "Mo", "1", "1", "2015"}, want: "01.01.2015"},
		{fields: []string{"Zählstelle 1", "Mo", "29.2", "2016"}, want: "29.02.2016"},
		{fields: []string{"Zählstelle 1", "Mo", "29.2", "2015"}, wantErr: true},
		{fields: []string{"Zählstelle 1", "Mo", "1.1", "15"}, wantErr: true},
		{fields: []string{"Zählstelle 1", "Mo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.fields, ","), func(t *testing.T) {
			got, err := headerDate(tt.fields)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "42", want: 42},
		{in: " 42 ", want: 42},
		{in: "1.234", want: 1234},
		{in: "1 234", want: 1234},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-5", wantErr: true},
		{in: " -1.200", wantErr: true},
		{in: "0", want: 0},
	}

	for _, tt := range tests {
		got, err := parseCount(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
