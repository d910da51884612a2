package weather

type forecast struct {
	Currently dataPoint `json:"currently"`
	Hourly    struct {
		Data []dataPoint `json:"data"`
	} `json:"hourly"`
	Daily struct {
		Data []dataPoint `json:"data"`
	} `json:"daily"`
}

// dataPoint uses pointers so absent fields are not published as zero.
type dataPoint struct {
	Summary                string   `json:"summary"`
	Icon                   string   `json:"icon"`
	ApparentTemperature    *float64 `json:"apparentTemperature"`
	ApparentTemperatureMax *float64 `json:"apparentTemperatureMax"`
	ApparentTemperatureMin *float64 `json:"apparentTemperatureMin"`
	CloudCover             *float64 `json:"cloudCover"`
	DewPoint               *float64 `json:"dewPoint"`
	Humidity               *float64 `json:"humidity"`
	MoonPhase              *float64 `json:"moonPhase"`
	Ozone                  *float64 `json:"ozone"`
	PrecipIntensity        *float64 `json:"precipIntensity"`
	PrecipProbability      *float64 `json:"precipProbability"`
	Pressure               *float64 `json:"pressure"`
	Temperature            *float64 `json:"temperature"`
	TemperatureMax         *float64 `json:"temperatureMax"`
	TemperatureMin         *float64 `json:"temperatureMin"`
	WindSpeed              *float64 `json:"windSpeed"`
}

type field struct {
	name    string
	extract func(dataPoint) (any, bool)
}

func number(name string, get func(dataPoint) *float64) field {
	return field{name: name, extract: func(p dataPoint) (any, bool) {
		v := get(p)
		if v == nil {
			return nil, false
		}
		return round2(*v), true
	}}
}

func text(name string, get func(dataPoint) string) field {
	return field{name: name, extract: func(p dataPoint) (any, bool) {
		v := get(p)
		return v, v != ""
	}}
}

// fields maps published variable names to their source in a data point.
var fields = []field{
	number("ApparentTemperature", func(p dataPoint) *float64 { return p.ApparentTemperature }),
	number("ApparentTemperatureMax", func(p dataPoint) *float64 { return p.ApparentTemperatureMax }),
	number("ApparentTemperatureMin", func(p dataPoint) *float64 { return p.ApparentTemperatureMin }),
	number("CloudCover", func(p dataPoint) *float64 { return p.CloudCover }),
	number("DewPoint", func(p dataPoint) *float64 { return p.DewPoint }),
	number("Humidity", func(p dataPoint) *float64 { return p.Humidity }),
	number("MoonPhase", func(p dataPoint) *float64 { return p.MoonPhase }),
	number("Ozone", func(p dataPoint) *float64 { return p.Ozone }),
	number("PrecipIntensity", func(p dataPoint) *float64 { return p.PrecipIntensity }),
	number("PrecipProbability", func(p dataPoint) *float64 { return p.PrecipProbability }),
	number("Pressure", func(p dataPoint) *float64 { return p.Pressure }),
	number("Temperature", func(p dataPoint) *float64 { return p.Temperature }),
	number("TemperatureMax", func(p dataPoint) *float64 { return p.TemperatureMax }),
	number("TemperatureMin", func(p dataPoint) *float64 { return p.TemperatureMin }),
	number("WindSpeed", func(p dataPoint) *float64 { return p.WindSpeed }),
	text("Icon", func(p dataPoint) string { return p.Icon }),
	text("Summary", func(p dataPoint) string { return p.Summary }),
}
