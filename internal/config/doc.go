// Package config defines the format-agnostic graph definition model along
// with the Loader interface for reading it from a concrete format.
//
// The config.Model is the single source of truth for the graph compiler:
// it declares nodes, edges, conditional edges, and the decision policy, but
// says nothing about how they execute. Concrete loaders, such as the HCL
// one in internal/hclspec, translate files into this model.
package config
