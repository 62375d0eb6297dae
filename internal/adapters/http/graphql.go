package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"staleview/internal/core/domain"
	"staleview/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	bboxType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BBox",
		Fields: graphql.Fields{
			"min_lon": &graphql.Field{Type: graphql.Float},
			"min_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
		},
	})

	featureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ImageryFeature",
		Fields: graphql.Fields{
			"source_id": &graphql.Field{Type: graphql.String},
			"provider":  &graphql.Field{Type: graphql.String},
			"bbox":      &graphql.Field{Type: bboxType},
			"centroid":  &graphql.Field{Type: geoPointType},
			"capture_date": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					f, ok := p.Source.(domain.ImageryFeature)
					if !ok || f.CaptureDate == nil {
						return nil, nil
					}
					return f.CaptureDate.Format(time.RFC3339), nil
				},
			},
			"age_years": &graphql.Field{Type: graphql.Float},
			"bucket":    &graphql.Field{Type: graphql.String},
		},
	})

	projectType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Project",
		Fields: graphql.Fields{
			"id":                &graphql.Field{Type: graphql.Int},
			"name":              &graphql.Field{Type: graphql.String},
			"status":            &graphql.Field{Type: graphql.String},
			"percent_mapped":    &graphql.Field{Type: graphql.Float},
			"percent_validated": &graphql.Field{Type: graphql.Float},
			"bounding_box":      &graphql.Field{Type: bboxType},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BucketSummary",
		Fields: graphql.Fields{
			"source":   &graphql.Field{Type: graphql.String},
			"total":    &graphql.Field{Type: graphql.Int},
			"fresh":    &graphql.Field{Type: graphql.Int},
			"medium":   &graphql.Field{Type: graphql.Int},
			"old":      &graphql.Field{Type: graphql.Int},
			"very_old": &graphql.Field{Type: graphql.Int},
			"unknown":  &graphql.Field{Type: graphql.Int},
		},
	})

	viewportArgs := graphql.FieldConfigArgument{
		"source": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.ProviderWayback)},
		"bbox":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
		"zoom":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 12},
	}

	parseArgs := func(p graphql.ResolveParams) (usecases.ViewportQuery, error) {
		source, ok := domain.ParseProvider(p.Args["source"].(string))
		if !ok {
			return usecases.ViewportQuery{}, domain.ErrUnknownProvider
		}
		bbox, err := domain.ParseBBox(p.Args["bbox"].(string))
		if err != nil {
			return usecases.ViewportQuery{}, err
		}
		return usecases.ViewportQuery{
			Source: source,
			BBox:   bbox,
			Zoom:   p.Args["zoom"].(int),
		}, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"project": &graphql.Field{
				Type:        projectType,
				Description: "Get a mapping project by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Projects.GetByID(p.Context, p.Args["id"].(int))
				},
			},
			"imagery": &graphql.Field{
				Type:        graphql.NewList(featureType),
				Description: "Classified imagery footprints for a viewport",
				Args:        viewportArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := parseArgs(p)
					if err != nil {
						return nil, err
					}
					res, err := deps.Imagery.Viewport(p.Context, q)
					if err != nil {
						return nil, err
					}
					return res.Features, nil
				},
			},
			"summary": &graphql.Field{
				Type:        summaryType,
				Description: "Age-bucket histogram for a viewport",
				Args:        viewportArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, err := parseArgs(p)
					if err != nil {
						return nil, err
					}
					return deps.Imagery.Summary(p.Context, q)
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
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
