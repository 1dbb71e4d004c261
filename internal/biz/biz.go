package biz

import (
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Ingest      *usecase.IngestUsecase
	Analysis    *usecase.AnalysisUsecase
	Aggregation *usecase.AggregationUsecase
	Dispatcher  *usecase.Dispatcher
}
