// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package segment

import (
	"fmt"
	"sort"

	"github.com/tomtom215/lodestar/internal/models"
)

// Segment labels.
const (
	LabelChampion       = "High-Value Champion"
	LabelLoyalist       = "Potential Loyalist"
	LabelNeedsAttention = "Needs Attention"
	LabelAtRisk         = "At-Risk/New"
)

// Vocabulary returns the labels for k clusters, best first.
func Vocabulary(k int) []string {
	switch k {
	case 3:
		return []string{LabelChampion, LabelLoyalist, LabelAtRisk}
	case 4:
		return []string{LabelChampion, LabelLoyalist, LabelNeedsAttention, LabelAtRisk}
	}
	labels := make([]string, k)
	for i := range labels {
		labels[i] = fmt.Sprintf("Segment %d", i)
	}
	return labels
}

// Profiles computes per-cluster feature means, ordered by descending mean
// probabilistic CLV. Equal means keep ascending cluster id order.
func Profiles(records []models.SegmentedCustomer) []models.ClusterProfile {
	byCluster := make(map[int]*models.ClusterProfile)
	for i := range records {
		r := &records[i]
		p, ok := byCluster[r.Cluster]
		if !ok {
			p = &models.ClusterProfile{Cluster: r.Cluster}
			byCluster[r.Cluster] = p
		}
		p.Size++
		p.Recency += float64(r.Features.Recency)
		p.Frequency += float64(r.Features.Frequency)
		p.MonetaryValue += r.Features.MonetaryValue
		p.ProbabilisticCLV += r.Features.ProbabilisticCLV90d
	}

	out := make([]models.ClusterProfile, 0, len(byCluster))
	for _, p := range byCluster {
		n := float64(p.Size)
		p.Recency /= n
		p.Frequency /= n
		p.MonetaryValue /= n
		p.ProbabilisticCLV /= n
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProbabilisticCLV > out[j].ProbabilisticCLV })
	return out
}

// Label assigns a business label to every record by the rank of its
// cluster's mean probabilistic CLV. It returns new records, the
// cluster-to-label map and the labeled cluster profiles. records is not
// modified. Only clusters present in records are labeled.
func Label(records []models.SegmentedCustomer) ([]models.LabeledCustomer, map[int]string, []models.ClusterProfile) {
	return labelProfiles(records, Profiles(records))
}

// LabelAll is Label for a model with clusters 0..k-1. Clusters with no
// records get an empty profile and rank below every populated cluster, in
// ascending id order, so the vocabulary is always chosen for k clusters.
func LabelAll(records []models.SegmentedCustomer, k int) ([]models.LabeledCustomer, map[int]string, []models.ClusterProfile) {
	profiles := Profiles(records)
	present := make(map[int]bool, len(profiles))
	for i := range profiles {
		present[profiles[i].Cluster] = true
	}
	for c := 0; c < k; c++ {
		if !present[c] {
			profiles = append(profiles, models.ClusterProfile{Cluster: c})
		}
	}
	return labelProfiles(records, profiles)
}

// labelProfiles labels profiles, already in rank order, and then records.
func labelProfiles(records []models.SegmentedCustomer, profiles []models.ClusterProfile) ([]models.LabeledCustomer, map[int]string, []models.ClusterProfile) {
	vocab := Vocabulary(len(profiles))
	labelMap := make(map[int]string, len(profiles))
	for rank := range profiles {
		profiles[rank].Label = vocab[rank]
		labelMap[profiles[rank].Cluster] = vocab[rank]
	}
	return ApplyLabels(records, labelMap), labelMap, profiles
}

// ApplyLabels labels records with an existing cluster-to-label map. Clusters
// missing from the map get an empty label.
func ApplyLabels(records []models.SegmentedCustomer, labelMap map[int]string) []models.LabeledCustomer {
	out := make([]models.LabeledCustomer, len(records))
	for i := range records {
		out[i] = models.LabeledCustomer{
			SegmentedCustomer: records[i],
			Label:             labelMap[records[i].Cluster],
		}
	}
	return out
}
