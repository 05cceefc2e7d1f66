package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/placedesk/internal/core/domain"
	"github.com/samirrijal/placedesk/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"nameCN":          &graphql.Field{Type: graphql.String},
			"nameEN":          &graphql.Field{Type: graphql.String},
			"category":        &graphql.Field{Type: graphql.String},
			"address":         &graphql.Field{Type: graphql.String},
			"description":     &graphql.Field{Type: graphql.String},
			"rating":          &graphql.Field{Type: graphql.Float},
			"externalPlaceId": &graphql.Field{Type: graphql.String},
			"cityId":          &graphql.Field{Type: graphql.String},
			"location":        &graphql.Field{Type: geoPointType},
			"distance":        &graphql.Field{Type: graphql.Float, Description: "Metres from the query point"},
		},
	})

	placePageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PlacePage",
		Fields: graphql.Fields{
			"places": &graphql.Field{Type: graphql.NewList(placeType)},
			"total":  &graphql.Field{Type: graphql.Int},
		},
	})

	nearestType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NearestMatch",
		Fields: graphql.Fields{
			"place":      &graphql.Field{Type: placeType},
			"distanceKm": &graphql.Field{Type: graphql.Float},
			"confidence": &graphql.Field{Type: graphql.String},
			"label": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					m, _ := p.Source.(*domain.NearestMatch)
					if m == nil {
						return nil, nil
					}
					return m.Confidence.Describe(), nil
				},
			},
		},
	})

	geocodeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeocodeResult",
		Fields: graphql.Fields{
			"address":     &graphql.Field{Type: graphql.String},
			"displayName": &graphql.Field{Type: graphql.String},
			"countryCode": &graphql.Field{Type: graphql.String},
			"provider":    &graphql.Field{Type: graphql.String},
		},
	})

	pointArgs := func(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
		args := graphql.FieldConfigArgument{
			"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
			"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		}
		for k, v := range extra {
			args[k] = v
		}
		return args
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"place": &graphql.Field{
				Type:        placeType,
				Description: "Get a place by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					place, err := deps.Places.GetByID(p.Context, p.Args["id"].(string))
					if errors.Is(err, domain.ErrNotFound) {
						return nil, nil
					}
					return place, err
				},
			},
			"places": &graphql.Field{
				Type:        placePageType,
				Description: "One page of places ordered by name",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					places, total, err := deps.Places.List(p.Context, p.Args["offset"].(int), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					return &usecases.PlacePage{Places: places, Total: total}, nil
				},
			},
			"nearbyPlaces": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Places within a radius of a point, nearest first",
				Args: pointArgs(graphql.FieldConfigArgument{
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 500.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Places.FindNearby(p.Context,
						p.Args["lat"].(float64), p.Args["lng"].(float64),
						p.Args["radius"].(float64), p.Args["limit"].(int))
				},
			},
			"nearestPlace": &graphql.Field{
				Type:        nearestType,
				Description: "Closest place of one list page to a point, with a confidence bucket",
				Args: pointArgs(graphql.FieldConfigArgument{
					"offset":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
					"exclude": &graphql.ArgumentConfig{Type: graphql.String},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					point := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					if !point.Valid() {
						return nil, domain.ErrInvalidCoordinate
					}
					places, _, err := deps.Places.List(p.Context, p.Args["offset"].(int), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					if exclude, ok := p.Args["exclude"].(string); ok && exclude != "" {
						kept := places[:0:0]
						for _, place := range places {
							if place.ID != exclude {
								kept = append(kept, place)
							}
						}
						places = kept
					}
					if m := usecases.FindNearest(point, places); m != nil {
						return m, nil
					}
					return nil, nil
				},
			},
			"reverseGeocode": &graphql.Field{
				Type:        geocodeType,
				Description: "Address of a coordinate",
				Args: pointArgs(graphql.FieldConfigArgument{
					"lang": &graphql.ArgumentConfig{Type: graphql.String},
				}),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Geocoder == nil {
						return nil, errors.New("reverse geocoding not configured")
					}
					lang, _ := p.Args["lang"].(string)
					if lang == "" {
						lang = deps.Language
					}
					point := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
					res, err := deps.Geocoder.ReverseGeocode(p.Context, point, lang)
					if err != nil || res == nil {
						return nil, err
					}
					return res, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
