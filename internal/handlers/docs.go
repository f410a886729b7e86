package handlers

import (
	"encoding/json"
	"net/http"
)

func pathID() map[string]interface{} {
	return map[string]interface{}{
		"name":        "id",
		"in":          "path",
		"description": "Counting station id (Zählstelle)",
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func queryParam(name, description, typ string, def interface{}) map[string]interface{} {
	schema := map[string]interface{}{"type": typ}
	if typ == "date" {
		schema = map[string]interface{}{"type": "string", "format": "date"}
	}
	if def != nil {
		schema["default"] = def
	}
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func jsonResponse(description string, schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func errorResponses(codes ...string) map[string]interface{} {
	descriptions := map[string]string{
		"400": "Invalid parameters",
		"404": "Unknown station",
		"422": "Series has gaps or too little history",
		"502": "Weather provider rejected the request",
		"503": "Series not loaded or weather provider unavailable",
	}
	responses := make(map[string]interface{}, len(codes))
	for _, code := range codes {
		responses[code] = jsonResponse(descriptions[code], ref("Error"))
	}
	return responses
}

func operation(summary, description string, params []map[string]interface{}, ok map[string]interface{}, errorCodes ...string) map[string]interface{} {
	responses := errorResponses(errorCodes...)
	responses["200"] = ok
	return map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     summary,
			"description": description,
			"parameters":  params,
			"responses":   responses,
		},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Traffic Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	dateParam := queryParam("date", "Day to predict (YYYY-MM-DD); defaults to the day after the last observation", "date", nil)

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Traffic Platform API",
			"description": "Daily traffic predictions for permanent counting stations with a seasonal-naive baseline, weather context and cross-validation",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Traffic Platform Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/stations": operation(
				"List stations",
				"All counting stations sorted by alias, with the last observed day",
				[]map[string]interface{}{},
				jsonResponse("Station list", ref("StationList")),
			),
			"/api/stations/{id}/prediction": operation(
				"Predict daily traffic",
				"Seasonal-naive prediction for one day, the preceding one-day-ahead backtests and the weekday indicator",
				[]map[string]interface{}{pathID(), dateParam},
				jsonResponse("Prediction", ref("StationPrediction")),
				"400", "404", "422", "503",
			),
			"/api/stations/{id}/weather": operation(
				"Weather at the station",
				"Forecast for noon of the given day at the station location (default: tomorrow)",
				[]map[string]interface{}{pathID(), queryParam("date", "Day (YYYY-MM-DD)", "date", nil)},
				jsonResponse("Weather forecast", ref("WeatherForecast")),
				"400", "404", "502", "503",
			),
			"/api/stations/{id}/dashboard": operation(
				"Dashboard data",
				"Prediction and weather fetched together; a weather failure is reported in weather_error",
				[]map[string]interface{}{pathID(), dateParam},
				jsonResponse("Dashboard", ref("Dashboard")),
				"400", "404", "422", "503",
			),
			"/api/stations/{id}/observations": operation(
				"Hourly observations",
				"Paginated hourly observations of one station",
				[]map[string]interface{}{
					pathID(),
					queryParam("start_date", "First day (YYYY-MM-DD)", "date", nil),
					queryParam("end_date", "Last day, inclusive (YYYY-MM-DD)", "date", nil),
					queryParam("page", "Page number", "integer", 1),
					queryParam("limit", "Records per page (max 1000)", "integer", 100),
				},
				jsonResponse("Observation page", ref("ObservationPage")),
				"400", "404", "503",
			),
			"/api/stations/{id}/crossval": operation(
				"Cross-validate the baseline",
				"RMSE and MAPE of the baseline over cutoffs from start to end every step days",
				[]map[string]interface{}{
					pathID(),
					queryParam("horizon", "Forecast horizon in days", "integer", 1),
					queryParam("start", "First cutoff (YYYY-MM-DD)", "date", nil),
					queryParam("end", "Last cutoff (YYYY-MM-DD)", "date", nil),
					queryParam("step", "Days between cutoffs", "integer", 7),
				},
				jsonResponse("Cross-validation result", ref("CrossValidationResult")),
				"400", "404", "422", "503",
			),
			"/health": operation(
				"Health check",
				"Reports whether the combined series is loaded",
				[]map[string]interface{}{},
				jsonResponse("Service is healthy", map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"status":    map[string]string{"type": "string"},
						"timestamp": map[string]string{"type": "string", "format": "date-time"},
						"last_date": map[string]string{"type": "string", "format": "date"},
					},
				}),
				"503",
			),
		},
		"components": map[string]interface{}{
			"schemas": schemas(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

func object(properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": properties}
}

func arrayOf(items interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": items}
}

func schemas() map[string]interface{} {
	str := map[string]string{"type": "string"}
	num := map[string]string{"type": "number"}
	integer := map[string]string{"type": "integer"}
	dateTime := map[string]string{"type": "string", "format": "date-time"}

	forecastRecord := object(map[string]interface{}{
		"station_id":  str,
		"cutoff_date": dateTime,
		"target_date": dateTime,
		"actual":      map[string]interface{}{"type": "number", "nullable": true},
		"predicted":   num,
	})

	return map[string]interface{}{
		"Error": object(map[string]interface{}{
			"error":   str,
			"message": str,
			"code":    integer,
		}),
		"Station": object(map[string]interface{}{
			"station_id": str,
			"alias":      str,
			"latitude":   num,
			"longitude":  num,
		}),
		"StationList": object(map[string]interface{}{
			"stations":  arrayOf(ref("Station")),
			"last_date": map[string]string{"type": "string", "format": "date"},
		}),
		"ForecastRecord": forecastRecord,
		"Indicator": object(map[string]interface{}{
			"percent":   integer,
			"reference": num,
			"level":     map[string]interface{}{"type": "string", "enum": []string{"similar", "higher", "lower", "unknown"}},
			"text":      str,
		}),
		"StationPrediction": object(map[string]interface{}{
			"station":   ref("Station"),
			"date":      dateTime,
			"predicted": num,
			"history":   arrayOf(ref("ForecastRecord")),
			"indicator": ref("Indicator"),
		}),
		"WeatherForecast": object(map[string]interface{}{
			"timestamp":           dateTime,
			"temperature_celsius": num,
			"precipitation_mm":    num,
			"sunshine_hours":      num,
			"wind_speed_ms":       num,
			"source":              str,
		}),
		"Dashboard": object(map[string]interface{}{
			"prediction":    ref("StationPrediction"),
			"weather":       ref("WeatherForecast"),
			"weather_error": str,
		}),
		"ObservationPage": object(map[string]interface{}{
			"data": arrayOf(object(map[string]interface{}{
				"station_id":      str,
				"timestamp":       dateTime,
				"passenger_count": integer,
				"freight_count":   integer,
				"total_count":     integer,
			})),
			"total":       integer,
			"page":        integer,
			"limit":       integer,
			"total_pages": integer,
		}),
		"CrossValidationResult": object(map[string]interface{}{
			"station_id": str,
			"horizon":    integer,
			"records":    arrayOf(ref("ForecastRecord")),
			"metrics": arrayOf(object(map[string]interface{}{
				"cutoff": dateTime,
				"rmse":   num,
				"mape":   num,
			})),
			"mean_rmse": num,
			"mean_mape": num,
		}),
	}
}
