// Package events defines the immutable payload schemas shared across
// topics (spec §9, C9) and the bus-boundary validation and tabular
// wire encoding described in spec §6.
package events

// Topic names every event published on the service bus. One variant
// per topic, as spec §9's design note requires ("dynamic-typed event
// dispatch → tagged sum type").
type Topic string

const (
	TopicAnalysisConfigurationProvided   Topic = "AnalysisConfigurationProvided"
	TopicRunAnalysisRequested            Topic = "RunAnalysisRequested"
	TopicFetchTopCoinsRequested          Topic = "FetchTopCoinsRequested"
	TopicTopCoinsFetched                 Topic = "TopCoinsFetched"
	TopicFetchPrecisionDataRequested     Topic = "FetchPrecisionDataRequested"
	TopicPrecisionDataFetched            Topic = "PrecisionDataFetched"
	TopicSingleCoinFetched               Topic = "SingleCoinFetched"
	TopicFetchHistoricalPricesRequested  Topic = "FetchHistoricalPricesRequested"
	TopicHistoricalPricesFetched         Topic = "HistoricalPricesFetched"
	TopicCalculateRSIRequested           Topic = "CalculateRSIRequested"
	TopicRSICalculated                   Topic = "RSICalculated"
	TopicCorrelationAnalyzed             Topic = "CorrelationAnalyzed"
	TopicCoinProcessingFailed            Topic = "CoinProcessingFailed"
	TopicAnalysisJobCompleted            Topic = "AnalysisJobCompleted"
	TopicFinalResultsReady               Topic = "FinalResultsReady"
	TopicDisplayCompleted                Topic = "DisplayCompleted"
	TopicAllProcessingCompleted          Topic = "AllProcessingCompleted"
	TopicWorkerFailed                    Topic = "WorkerFailed"
)

// Event is implemented by every payload schema. Validate reports a
// schema violation; the bus drops (and logs) payloads that fail it,
// per spec §4.1 ("payloads failing schema validation are dropped and
// logged, not re-queued").
type Event interface {
	Topic() Topic
	Validate() error
}
