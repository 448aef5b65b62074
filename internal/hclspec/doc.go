// Package hclspec loads graph definitions written in HCL and translates
// them into the format-agnostic config.Model.
//
// A definition file declares node blocks (labeled by type tag and id),
// edge blocks, optional conditional_edge blocks, and a decision block:
//
//	node "worker" "pattern_detector" {
//	  focus       = "pattern_detector"
//	  temperature = 0.3
//	}
//
//	edge {
//	  from = "orchestrator"
//	  to   = "pattern_detector"
//	}
//
//	decision {
//	  decline       = 70
//	  review        = 40
//	  min_analyzers = 3
//	  weights = { pattern_detector = 0.25 }
//	}
package hclspec
