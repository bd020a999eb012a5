// Package service 提供了知识库问答流水线的业务逻辑。
package service

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"zhiwen-go/internal/config"
	"zhiwen-go/internal/model"
	"zhiwen-go/pkg/log"
)

const (
	defaultMinCitationSimilarity = 0.3
	defaultMaxCitations          = 10
	lowRelevanceCutoff           = 0.4
	validQualityFloor            = 0.6
)

// citationMarkerPattern 匹配回答正文里的 [N] 形式引用标记。
var citationMarkerPattern = regexp.MustCompile(`\[(\d+)\]`)

// hallucinationKeywords 是可能暗示模型脱离上下文作答的措辞（全小写）。
var hallucinationKeywords = []string{
	"according to my knowledge",
	"as far as i know",
	"in general",
	"typically",
	"usually",
	"it is common",
}

// CitationService 接口定义了引用生成、置信度计算与回答质量校验。
type CitationService interface {
	// BuildCitations 把检索结果转换为引用列表。citedOrdinals 为 nil 时
	// 不做序号过滤；非 nil 时只保留回答中实际引用到的序号（1 起）。
	BuildCitations(results []model.SearchResult, citedOrdinals map[int]struct{}) []model.Citation
	// OverallConfidence 计算整个回答的置信度，范围 [0,1]。
	OverallConfidence(results []model.SearchResult, citationsUsed int) float64
	// Validate 检查回答与引用的一致性，返回质量结论。
	Validate(response string, contextChunks []string, citations []model.Citation) model.ValidationReport
}

type citationService struct {
	minSimilarity float64
	maxCitations  int
}

// NewCitationService 创建一个新的 CitationService 实例。
func NewCitationService(cfg config.CitationConfig) CitationService {
	minSimilarity := cfg.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = defaultMinCitationSimilarity
	}
	maxCitations := cfg.MaxCitations
	if maxCitations <= 0 {
		maxCitations = defaultMaxCitations
	}
	return &citationService{
		minSimilarity: minSimilarity,
		maxCitations:  maxCitations,
	}
}

// BuildCitations 把检索结果转换为引用列表。
// 结果按检索排名遍历（序号从 1 起），跳过未被引用或相似度过低的条目，
// 同一 (document_id, chunk_index) 只保留首次出现，达到上限后停止。
func (s *citationService) BuildCitations(results []model.SearchResult, citedOrdinals map[int]struct{}) []model.Citation {
	citations := make([]model.Citation, 0, len(results))
	seen := make(map[string]struct{}, len(results))

	for i, result := range results {
		ordinal := i + 1

		if citedOrdinals != nil {
			if _, ok := citedOrdinals[ordinal]; !ok {
				continue
			}
		}
		if result.SimilarityScore < s.minSimilarity {
			log.Debugf("[CitationService] 跳过引用 %d（相似度 %.3f 低于 %.2f）", ordinal, result.SimilarityScore, s.minSimilarity)
			continue
		}

		key := fmt.Sprintf("%s#%d", result.Document.ID, result.Chunk.ChunkIndex)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		citations = append(citations, model.Citation{
			Ordinal:         ordinal,
			Text:            result.Chunk.Text,
			DocumentID:      result.Document.ID,
			DocumentTitle:   result.Document.Name,
			ChunkIndex:      result.Chunk.ChunkIndex,
			SimilarityScore: roundTo(result.SimilarityScore, 4),
			Rank:            ordinal,
			ConfidenceTier:  confidenceTier(result.SimilarityScore),
			StartChar:       result.Chunk.StartChar,
			EndChar:         result.Chunk.EndChar,
		})

		if len(citations) >= s.maxCitations {
			log.Debugf("[CitationService] 引用数量达到上限 %d", s.maxCitations)
			break
		}
	}

	log.Infof("[CitationService] 从 %d 条检索结果生成 %d 条引用", len(results), len(citations))
	return citations
}

// OverallConfidence 计算整个回答的置信度。
// 加权构成：前 3 条结果的平均相似度占 50%，相似度高于 0.7 的结果占比
// 占 30%，实际引用数相对 3 条的覆盖率占 20%，结果保留 4 位小数。
func (s *citationService) OverallConfidence(results []model.SearchResult, citationsUsed int) float64 {
	if len(results) == 0 {
		return 0.0
	}

	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	var sum float64
	for _, r := range top {
		sum += r.SimilarityScore
	}
	avgSimilarity := sum / float64(len(top))

	highQuality := 0
	for _, r := range results {
		if r.SimilarityScore > 0.7 {
			highQuality++
		}
	}
	qualityRatio := float64(highQuality) / float64(len(results))

	coverage := math.Min(float64(citationsUsed)/3, 1.0)

	confidence := avgSimilarity*0.5 + qualityRatio*0.3 + coverage*0.2
	log.Debugf("[CitationService] 置信度计算: 平均相似度=%.3f, 高质量占比=%.3f, 覆盖率=%.3f, 结果=%.3f",
		avgSimilarity, qualityRatio, coverage, confidence)
	return roundTo(confidence, 4)
}

// Validate 检查回答与引用的一致性。
// 每发现一类问题从 1.0 的基准分里扣固定分值，最终裁剪到 [0,1]；
// 仅当质量分 >= 0.6 且无任何问题时回答才算通过。
func (s *citationService) Validate(response string, contextChunks []string, citations []model.Citation) model.ValidationReport {
	issues := []string{}
	qualityScore := 1.0

	if len(citations) > 0 {
		maxOrdinal := len(contextChunks)
		for _, citation := range citations {
			if citation.Ordinal < 1 || citation.Ordinal > maxOrdinal {
				issues = append(issues, fmt.Sprintf(
					"Citation [%d] references invalid context index (valid range: 1-%d)",
					citation.Ordinal, maxOrdinal))
				qualityScore -= 0.2
			}
		}
	} else if len(contextChunks) > 0 && len(response) > 50 {
		issues = append(issues, "Response has no citations despite available context")
		qualityScore -= 0.3
	}

	if len(contextChunks) > 0 && !citationMarkerPattern.MatchString(response) {
		issues = append(issues, "Response contains no citation markers despite available context")
		qualityScore -= 0.2
	}

	if len(citations) > 0 {
		lowQuality := 0
		for _, citation := range citations {
			if citation.SimilarityScore < lowRelevanceCutoff {
				lowQuality++
			}
		}
		if lowQuality > 0 {
			issues = append(issues, fmt.Sprintf("%d citations have very low relevance (<0.4)", lowQuality))
			qualityScore -= 0.1 * float64(lowQuality)
		}
	}

	if len(contextChunks) > 0 {
		responseLower := strings.ToLower(response)
		for _, keyword := range hallucinationKeywords {
			if strings.Contains(responseLower, keyword) {
				issues = append(issues, fmt.Sprintf("Response contains potential hallucination indicator: '%s'", keyword))
				qualityScore -= 0.1
				break
			}
		}
	}

	qualityScore = math.Max(0.0, math.Min(1.0, qualityScore))
	report := model.ValidationReport{
		IsValid:      qualityScore >= validQualityFloor && len(issues) == 0,
		Issues:       issues,
		QualityScore: roundTo(qualityScore, 3),
	}

	if !report.IsValid {
		log.Warnf("[CitationService] 回答质量校验未通过: 质量分=%.3f, 问题数=%d", report.QualityScore, len(issues))
	}
	return report
}

// confidenceTier 按相似度划分引用的可信档位。
func confidenceTier(similarity float64) model.ConfidenceTier {
	if similarity >= 0.8 {
		return model.TierHigh
	}
	if similarity >= 0.5 {
		return model.TierMedium
	}
	return model.TierLow
}

// roundTo 四舍五入保留 places 位小数。
func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
