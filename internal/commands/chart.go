package commands

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font/gofont/goregular"

	"ramzinex-alert-bot/internal/types"
	"ramzinex-alert-bot/lib/helpers"
	"ramzinex-alert-bot/lib/translation"
)

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
	seriesColor     = drawing.Color{R: 0, G: 122, B: 255, A: 255}
)

var (
	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
)

func chartFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		font, fontErr = truetype.Parse(goregular.TTF)
	})
	return font, fontErr
}

// CommandChart handles "/chart <symbol>". It renders the recent live prices
// kept in memory; a nil image means there is not enough data and the
// caption explains why.
func (h *Handler) CommandChart(args string) ([]byte, string, error) {
	log.Debugf("processing command /chart with argument :%s", args)

	symbol, _ := ParseArguments(args)
	symbol = strings.ToUpper(symbol)
	if symbol == "" {
		return nil, helpers.EscapeMarkdownV2(translation.Translate("Usage: /chart <symbol>, e.g. /chart BTC")), nil
	}

	points := h.history.History(symbol)
	if len(points) < 2 {
		return nil, helpers.EscapeMarkdownV2(translation.Translate("Not enough live prices for %s yet, try again in a few minutes.", symbol)), nil
	}

	chartData, err := renderChart(symbol, h.unit, points)
	if err != nil {
		return nil, "", errors.Wrap(err, "command /chart")
	}

	last := points[len(points)-1]
	caption := translation.Translate("*%s* %s, %d live prices since %s",
		helpers.EscapeMarkdownV2(symbol),
		h.price(last.Price),
		len(points),
		helpers.EscapeMarkdownV2(helpers.FormatAge(points[0].ObservedAt, h.now())),
	)
	return chartData, caption, nil
}

func renderChart(symbol, unit string, points []types.PricePoint) ([]byte, error) {
	f, err := chartFont()
	if err != nil {
		return nil, errors.Wrap(err, "load chart font")
	}

	times := make([]time.Time, 0, len(points))
	prices := make([]float64, 0, len(points))
	for _, p := range points {
		times = append(times, p.ObservedAt)
		prices = append(prices, p.Price.InexactFloat64())
	}

	minPrice, maxPrice := getMinMax(prices)
	padding := (maxPrice - minPrice) * 0.1
	if padding == 0 {
		padding = maxPrice * 0.01
	}

	title := symbol
	if unit != "" {
		title = fmt.Sprintf("%s (%s)", symbol, unit)
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: textColor, FontSize: 10}
	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      1200,
		Height:     500,
		Font:       f,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Style: axisStyle,
			Range: &chart.ContinuousRange{Min: minPrice - padding, Max: maxPrice + padding},
			ValueFormatter: func(v interface{}) string {
				if price, ok := v.(float64); ok {
					return helpers.FormatPrice(decimal.NewFromFloat(price), false)
				}
				return ""
			},
			GridMajorStyle: chart.Style{StrokeColor: gridColor, StrokeWidth: 1},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    symbol,
				XValues: times,
				YValues: prices,
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					FillColor:   seriesColor.WithAlpha(35),
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func getMinMax(prices []float64) (min, max float64) {
	if len(prices) == 0 {
		return 0, 1
	}

	min, max = prices[0], prices[0]
	for _, price := range prices {
		if price < min {
			min = price
		}
		if price > max {
			max = price
		}
	}
	return min, max
}
