// Package labeling drives the detection lifecycle of the active-learning
// loop on top of a store.Store.
//
// Detections start as model output, are promoted to active when a sampler
// selects them for review, and become user detections once a reviewer gives
// a definitive label. Every review writes at most one oracle per detection;
// later reviews update it. Transitions never go backward.
package labeling
