package design

import "errors"

// ErrFrameNotFound is returned by FindFrameByName when no frame carries the
// requested name. Callers must not treat it as an empty result.
var ErrFrameNotFound = errors.New("design: frame not found")

// CollectFrames gathers the FRAME nodes reachable from root through
// DOCUMENT and CANVAS containers. It does not look inside a frame, so
// nested frames are not returned.
func CollectFrames(root *Node) []*Node {
	if root == nil {
		return nil
	}
	var frames []*Node
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		switch n.Type {
		case TypeFrame:
			frames = append(frames, n)
		case TypeDocument, TypeCanvas:
			stack = append(stack, reverse(n.Children)...)
		}
	}
	return frames
}

// FindFrameByName returns the first FRAME, in pre-order, whose name equals
// name exactly.
func FindFrameByName(root *Node, name string) (*Node, error) {
	if root == nil {
		return nil, ErrFrameNotFound
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if n.Type == TypeFrame && n.Name == name {
			return n, nil
		}
		stack = append(stack, reverse(n.Children)...)
	}
	return nil, ErrFrameNotFound
}
